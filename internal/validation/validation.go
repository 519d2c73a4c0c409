package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Collector accumulates validation errors without failing on first.
// A zero limit keeps every error; otherwise collection stops at limit.
type Collector struct {
	errors []ValidationError
	limit  int
}

// NewCollector returns a Collector that keeps at most limit errors.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err == nil {
		return
	}
	if c.limit > 0 && len(c.errors) >= c.limit {
		return
	}
	c.errors = append(c.errors, *err)
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Field formats the path of a field inside the n-th record of a payload,
// e.g. data[3].code.
func Field(index int, name string) string {
	return fmt.Sprintf("data[%d].%s", index, name)
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
// PostgreSQL rejects NUL in text columns.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
// A non-positive max disables the check.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if max > 0 && utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// Invalid builds a ValidationError for a value of the wrong shape.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
