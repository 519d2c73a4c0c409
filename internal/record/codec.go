package record

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hyperengineering/refdata/internal/tables"
	"github.com/hyperengineering/refdata/internal/validation"
)

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Row is a typed tuple laid out in the table's column order, plus any
// computed columns merged in at read time.
type Row struct {
	Table    *tables.Table
	Values   []Value
	computed []namedValue
}

type namedValue struct {
	name  string
	value Value
}

// NewRow returns an all-null row for t.
func NewRow(t *tables.Table) Row {
	values := make([]Value, len(t.Columns))
	for i, c := range t.Columns {
		values[i] = Null(c.Kind)
	}
	return Row{Table: t, Values: values}
}

// Get returns the named stored or computed value.
func (r Row) Get(name string) (Value, bool) {
	if _, i, ok := r.Table.Column(name); ok {
		return r.Values[i], true
	}
	for _, c := range r.computed {
		if c.name == name {
			return c.value, true
		}
	}
	return Value{}, false
}

// SetComputed attaches a read-time column, replacing any previous value.
func (r *Row) SetComputed(name string, v Value) {
	for i := range r.computed {
		if r.computed[i].name == name {
			r.computed[i].value = v
			return
		}
	}
	r.computed = append(r.computed, namedValue{name: name, value: v})
}

// Compute evaluates every computed column of the row's table.
func (r *Row) Compute() {
	for _, c := range r.Table.Computed {
		sum := decimal.Zero
		for _, name := range c.Plus {
			v, _ := r.Get(name)
			sum = sum.Add(v.Dec())
		}
		for _, name := range c.Minus {
			v, _ := r.Get(name)
			sum = sum.Sub(v.Dec())
		}
		r.SetComputed(c.Name, Decimal(sum, c.Scale))
	}
}

// Decode converts a wire record into a typed row of t. Keys that are not
// columns of t are ignored. Conversion failures are reported together
// as *FieldErrors naming each column.
func Decode(t *tables.Table, w WireRecord) (Row, error) {
	row := NewRow(t)
	c := validation.NewCollector(0)
	failed := make(map[int]bool)

	for _, f := range w.Fields() {
		col, i, ok := t.Column(f.Key)
		if !ok {
			continue
		}
		v, verr := decodeValue(col, f.Value)
		if verr != nil {
			c.Add(verr)
			failed[i] = true
			continue
		}
		row.Values[i] = v
	}

	for i, col := range t.Columns {
		if col.Required && !failed[i] && row.Values[i].IsNull() {
			c.Add(validation.ValidateRequired(col.Name, ""))
		}
	}

	if c.HasErrors() {
		return Row{}, &FieldErrors{Errors: c.Errors()}
	}
	return row, nil
}

// Encode converts a row into its wire form. Null columns are omitted;
// computed columns follow the stored ones.
func Encode(r Row) WireRecord {
	var w WireRecord
	for i, col := range r.Table.Columns {
		if v := r.Values[i]; !v.IsNull() {
			w.fields = append(w.fields, Field{Key: col.Name, Value: toScalar(v)})
		}
	}
	for _, c := range r.computed {
		if !c.value.IsNull() {
			w.fields = append(w.fields, Field{Key: c.name, Value: toScalar(c.value)})
		}
	}
	return w
}

// EncodeAll encodes a slice of rows, preserving order.
func EncodeAll(rows []Row) []WireRecord {
	out := make([]WireRecord, len(rows))
	for i, r := range rows {
		out[i] = Encode(r)
	}
	return out
}

func toScalar(v Value) Scalar {
	switch v.Kind() {
	case tables.KindInteger, tables.KindDecimal:
		return NumberScalar(v.String())
	default:
		return StringScalar(v.String())
	}
}

func decodeValue(col tables.Column, s Scalar) (Value, *validation.ValidationError) {
	if s.Kind == ScalarNull {
		return Null(col.Kind), nil
	}

	switch col.Kind {
	case tables.KindInteger:
		raw, ok := numericText(s)
		if !ok {
			return Value{}, validation.Invalid(col.Name, "must be an integer")
		}
		if raw == "" {
			return Null(col.Kind), nil
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Integer(n), nil
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || !d.IsInteger() {
			return Value{}, validation.Invalid(col.Name, "must be an integer, got %q", raw)
		}
		if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
			return Value{}, validation.Invalid(col.Name, "integer %q is out of range", raw)
		}
		return Integer(d.IntPart()), nil

	case tables.KindDecimal:
		raw, ok := numericText(s)
		if !ok {
			return Value{}, validation.Invalid(col.Name, "must be a number")
		}
		if raw == "" {
			return Null(col.Kind), nil
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Value{}, validation.Invalid(col.Name, "must be a number, got %q", raw)
		}
		v := Decimal(d, col.Scale)
		if col.Precision > col.Scale && v.Dec().Abs().GreaterThanOrEqual(decimal.New(1, int32(col.Precision-col.Scale))) {
			return Value{}, validation.Invalid(col.Name, "must have at most %d digits before the decimal point, got %q",
				col.Precision-col.Scale, raw)
		}
		return v, nil

	case tables.KindDate:
		if s.Kind != ScalarString {
			return Value{}, validation.Invalid(col.Name, "must be a date string")
		}
		if strings.TrimSpace(s.Raw) == "" {
			return Null(col.Kind), nil
		}
		t, ok := parseDate(s.Raw)
		if !ok {
			return Value{}, validation.Invalid(col.Name, "must be a date (YYYY-MM-DD), got %q", s.Raw)
		}
		return Date(t), nil

	default:
		text := s.Raw
		if err := validation.ValidateUTF8(col.Name, text); err != nil {
			return Value{}, err
		}
		if err := validation.ValidateNoNullBytes(col.Name, text); err != nil {
			return Value{}, err
		}
		if err := validation.ValidateMaxLength(col.Name, text, col.MaxLength); err != nil {
			return Value{}, err
		}
		if col.Required {
			if err := validation.ValidateRequired(col.Name, text); err != nil {
				return Value{}, err
			}
		}
		return Text(text), nil
	}
}

// numericText returns the trimmed text of a number or string scalar.
// Booleans are never numeric.
func numericText(s Scalar) (string, bool) {
	switch s.Kind {
	case ScalarNumber:
		return s.Raw, true
	case ScalarString:
		return strings.TrimSpace(s.Raw), true
	default:
		return "", false
	}
}
