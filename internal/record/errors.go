package record

import (
	"errors"

	"github.com/hyperengineering/refdata/internal/validation"
)

var (
	// ErrSchemaMismatch indicates a record whose keys do not fit the
	// column set established by the first record of a payload.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrMalformedInput indicates a value that cannot be converted to its
	// column type, or a payload that is not shaped like records.
	ErrMalformedInput = errors.New("malformed input")
)

// FieldErrors collects per-field decode failures.
type FieldErrors struct {
	Errors []validation.ValidationError `json:"errors"`
}

// Error implements the error interface.
func (e *FieldErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "malformed input"
	case 1:
		return "malformed input: " + e.Errors[0].Error()
	default:
		return "malformed input: " + e.Errors[0].Error() + " (and more)"
	}
}

// Unwrap returns ErrMalformedInput for errors.Is() compatibility.
func (e *FieldErrors) Unwrap() error {
	return ErrMalformedInput
}
