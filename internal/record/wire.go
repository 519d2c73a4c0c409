package record

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ScalarKind tags a wire value.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarString
	ScalarNumber
	ScalarBool
)

// Scalar is one wire value. Numbers keep their raw JSON text so that
// decimals never pass through float64.
type Scalar struct {
	Kind ScalarKind
	Raw  string
}

// StringScalar returns a string scalar.
func StringScalar(s string) Scalar { return Scalar{Kind: ScalarString, Raw: s} }

// NumberScalar returns a number scalar from its JSON text.
func NumberScalar(raw string) Scalar { return Scalar{Kind: ScalarNumber, Raw: raw} }

// Field is one key/value pair of a wire record.
type Field struct {
	Key   string
	Value Scalar
}

// WireRecord is a flat JSON object of scalars that keeps its key order.
type WireRecord struct {
	fields []Field
}

// NewWireRecord builds a record from fields. Later duplicates replace
// earlier values in place.
func NewWireRecord(fields ...Field) WireRecord {
	var w WireRecord
	for _, f := range fields {
		w.Set(f.Key, f.Value)
	}
	return w
}

// Set assigns key, keeping its original position when already present.
func (w *WireRecord) Set(key string, v Scalar) {
	for i := range w.fields {
		if w.fields[i].Key == key {
			w.fields[i].Value = v
			return
		}
	}
	w.fields = append(w.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (w WireRecord) Get(key string) (Scalar, bool) {
	for _, f := range w.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Scalar{}, false
}

// Keys returns the record's keys in order.
func (w WireRecord) Keys() []string {
	keys := make([]string, len(w.fields))
	for i, f := range w.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the record's fields in order.
func (w WireRecord) Fields() []Field { return w.fields }

// Len returns the number of keys.
func (w WireRecord) Len() int { return len(w.fields) }

// UnmarshalJSON parses a flat JSON object. Nested objects and arrays are
// rejected with ErrMalformedInput.
func (w *WireRecord) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("%w: record must be a JSON object", ErrMalformedInput)
	}

	w.fields = w.fields[:0]
	var err error
	res.ForEach(func(k, v gjson.Result) bool {
		var s Scalar
		switch v.Type {
		case gjson.Null:
			s = Scalar{Kind: ScalarNull}
		case gjson.String:
			s = StringScalar(v.String())
		case gjson.Number:
			s = NumberScalar(v.Raw)
		case gjson.True, gjson.False:
			s = Scalar{Kind: ScalarBool, Raw: v.Raw}
		default:
			err = fmt.Errorf("%w: field %q must be a scalar", ErrMalformedInput, k.String())
			return false
		}
		w.Set(k.String(), s)
		return true
	})
	return err
}

// MarshalJSON renders the record as a JSON object in key order.
func (w WireRecord) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	var err error
	for _, f := range w.fields {
		path := escapePath(f.Key)
		switch f.Value.Kind {
		case ScalarNull:
			out, err = sjson.SetRawBytes(out, path, []byte("null"))
		case ScalarString:
			out, err = sjson.SetBytes(out, path, f.Value.Raw)
		default:
			out, err = sjson.SetRawBytes(out, path, []byte(f.Value.Raw))
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Key, err)
		}
	}
	return out, nil
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, ":", `\:`,
)

// escapePath quotes sjson path syntax so any key is treated literally.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
