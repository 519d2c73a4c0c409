package validation

import (
	"strings"
	"testing"
)

// --- ValidateUTF8 Tests ---

func TestValidateUTF8_Valid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ascii", "ACME Traders"},
		{"empty", ""},
		{"unicode", "Ernākulam Stores"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateUTF8("field", tt.value); err != nil {
				t.Errorf("ValidateUTF8(%q) = %v, want nil", tt.value, err)
			}
		})
	}
}

func TestValidateUTF8_Invalid(t *testing.T) {
	invalidUTF8 := string([]byte{0xff, 0xfe})

	err := ValidateUTF8("name", invalidUTF8)
	if err == nil {
		t.Fatal("ValidateUTF8(invalid) = nil, want error")
	}
	if err.Field != "name" {
		t.Errorf("error.Field = %q, want %q", err.Field, "name")
	}
}

// --- ValidateNoNullBytes Tests ---

func TestValidateNoNullBytes(t *testing.T) {
	if err := ValidateNoNullBytes("name", "clean"); err != nil {
		t.Errorf("ValidateNoNullBytes(clean) = %v, want nil", err)
	}
	err := ValidateNoNullBytes("name", "bad\x00value")
	if err == nil {
		t.Fatal("ValidateNoNullBytes(with NUL) = nil, want error")
	}
	if !strings.Contains(err.Message, "null") {
		t.Errorf("message = %q, want mention of null bytes", err.Message)
	}
}

// --- ValidateMaxLength Tests ---

func TestValidateMaxLength(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		max     int
		wantErr bool
	}{
		{"under", "abc", 5, false},
		{"exact", "abcde", 5, false},
		{"over", "abcdef", 5, true},
		{"multibyte counts runes", "ā ā ā", 5, false},
		{"disabled", strings.Repeat("x", 1000), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMaxLength("code", tt.value, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMaxLength(%q, %d) = %v, wantErr %v", tt.value, tt.max, err, tt.wantErr)
			}
		})
	}
}

// --- ValidateRequired Tests ---

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "P001", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired("code", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

// --- Collector Tests ---

func TestCollector_AccumulatesErrors(t *testing.T) {
	// Given: A collector without a limit
	c := NewCollector(0)

	// When: Adding nil and non-nil errors
	c.Add(nil)
	c.Add(ValidateRequired(Field(0, "code"), ""))
	c.Add(ValidateRequired(Field(2, "code"), " "))

	// Then: Only non-nil errors are kept, in order
	if !c.HasErrors() {
		t.Fatal("HasErrors() = false, want true")
	}
	errs := c.Errors()
	if len(errs) != 2 {
		t.Fatalf("len(Errors()) = %d, want 2", len(errs))
	}
	if errs[0].Field != "data[0].code" || errs[1].Field != "data[2].code" {
		t.Errorf("fields = %q, %q", errs[0].Field, errs[1].Field)
	}
}

func TestCollector_RespectsLimit(t *testing.T) {
	c := NewCollector(2)
	for i := 0; i < 5; i++ {
		c.Add(Invalid(Field(i, "amcamt"), "must be a number"))
	}
	if got := len(c.Errors()); got != 2 {
		t.Errorf("len(Errors()) = %d, want 2", got)
	}
}

func TestCollector_Empty(t *testing.T) {
	c := NewCollector(0)
	if c.HasErrors() {
		t.Error("HasErrors() = true on empty collector")
	}
	if len(c.Errors()) != 0 {
		t.Error("Errors() should be empty")
	}
}
