package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hyperengineering/refdata/internal/tables"
)

// DateLayout is the canonical calendar-date form.
const DateLayout = "2006-01-02"

// dateLayouts are the accepted inputs for date columns, tried in order.
// Only the calendar date as written is kept; offsets are discarded.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
}

// Value is a typed column value. The zero Value is a null text value.
type Value struct {
	kind  tables.Kind
	valid bool
	text  string
	num   int64
	dec   decimal.Decimal
	scale int
	date  time.Time
}

// Null returns a null value of the given kind.
func Null(kind tables.Kind) Value {
	return Value{kind: kind}
}

// Text returns a non-null text value.
func Text(s string) Value {
	return Value{kind: tables.KindText, valid: true, text: s}
}

// Integer returns a non-null integer value.
func Integer(n int64) Value {
	return Value{kind: tables.KindInteger, valid: true, num: n}
}

// Decimal returns a non-null decimal value rounded to scale.
func Decimal(d decimal.Decimal, scale int) Value {
	return Value{kind: tables.KindDecimal, valid: true, dec: d.Round(int32(scale)), scale: scale}
}

// Date returns a non-null date value holding the calendar date of t.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: tables.KindDate, valid: true, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Kind returns the column kind the value belongs to.
func (v Value) Kind() tables.Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return !v.valid }

// String renders the value in its canonical text form. Null renders as "".
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case tables.KindInteger:
		return strconv.FormatInt(v.num, 10)
	case tables.KindDecimal:
		return v.dec.StringFixed(int32(v.scale))
	case tables.KindDate:
		return v.date.Format(DateLayout)
	default:
		return v.text
	}
}

// Int returns the integer content, zero when null or not an integer.
func (v Value) Int() int64 { return v.num }

// Dec returns the decimal content. Null counts as zero.
func (v Value) Dec() decimal.Decimal {
	if !v.valid || v.kind != tables.KindDecimal {
		return decimal.Zero
	}
	return v.dec
}

// Time returns the date content at UTC midnight.
func (v Value) Time() time.Time { return v.date }

// Arg returns the value as a database/sql query argument.
// Decimals and dates are passed as canonical strings, which both the
// sqlite and postgres drivers coerce to the column type.
func (v Value) Arg() any {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case tables.KindInteger:
		return v.num
	case tables.KindDecimal, tables.KindDate:
		return v.String()
	default:
		return v.text
	}
}

// Equal reports whether two values have the same kind, nullness and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	if v.kind == tables.KindDecimal {
		return v.dec.Equal(o.dec)
	}
	return v.String() == o.String()
}

// FromSQL converts a scanned driver value into a Value for col.
// The sqlite driver hands back int64, float64, string, []byte or
// time.Time depending on storage class; pgx hands back strings for
// numerics and time.Time for dates.
func FromSQL(col tables.Column, src any) (Value, error) {
	if src == nil {
		return Null(col.Kind), nil
	}
	switch col.Kind {
	case tables.KindInteger:
		switch s := src.(type) {
		case int64:
			return Integer(s), nil
		case float64:
			return Integer(int64(s)), nil
		case string, []byte:
			n, err := strconv.ParseInt(strings.TrimSpace(asString(s)), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("scan %s: %w", col.Name, err)
			}
			return Integer(n), nil
		}
	case tables.KindDecimal:
		switch s := src.(type) {
		case int64:
			return Decimal(decimal.NewFromInt(s), col.Scale), nil
		case float64:
			return Decimal(decimal.NewFromFloat(s), col.Scale), nil
		case string, []byte:
			d, err := decimal.NewFromString(strings.TrimSpace(asString(s)))
			if err != nil {
				return Value{}, fmt.Errorf("scan %s: %w", col.Name, err)
			}
			return Decimal(d, col.Scale), nil
		}
	case tables.KindDate:
		switch s := src.(type) {
		case time.Time:
			return Date(s), nil
		case string, []byte:
			str := asString(s)
			if str == "" {
				return Null(tables.KindDate), nil
			}
			t, ok := parseDate(str)
			if !ok {
				return Value{}, fmt.Errorf("scan %s: unrecognised date %q", col.Name, str)
			}
			return Date(t), nil
		}
	default:
		switch s := src.(type) {
		case string:
			return Text(s), nil
		case []byte:
			return Text(string(s)), nil
		case int64:
			return Text(strconv.FormatInt(s, 10)), nil
		case float64:
			return Text(strconv.FormatFloat(s, 'f', -1, 64)), nil
		case time.Time:
			return Text(s.Format(time.RFC3339)), nil
		}
	}
	return Value{}, fmt.Errorf("scan %s: unsupported %s source %T", col.Name, col.Kind, src)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
