package record

import (
	"fmt"

	"github.com/hyperengineering/refdata/internal/tables"
)

// Shape is the column set of a sync payload, fixed by its first record.
type Shape struct {
	table   *tables.Table
	columns []string
	indexes []int
	set     map[string]struct{}
}

// NewShape derives the column set from the first record of a payload.
// Every key must be a wire column of t.
func NewShape(t *tables.Table, first WireRecord) (*Shape, error) {
	if first.Len() == 0 {
		return nil, fmt.Errorf("%w: record 0 has no columns", ErrSchemaMismatch)
	}

	s := &Shape{table: t, set: make(map[string]struct{}, first.Len())}
	for _, key := range first.Keys() {
		_, i, ok := t.Column(key)
		if !ok {
			return nil, fmt.Errorf("%w: record 0: %q is not a column of %s", ErrSchemaMismatch, key, t.Name)
		}
		s.columns = append(s.columns, key)
		s.indexes = append(s.indexes, i)
		s.set[key] = struct{}{}
	}
	return s, nil
}

// Check verifies that record index uses only keys from the shape.
// Missing keys are allowed and stored as null.
func (s *Shape) Check(index int, w WireRecord) error {
	for _, key := range w.Keys() {
		if _, ok := s.set[key]; !ok {
			return fmt.Errorf("%w: record %d: unexpected key %q not present in record 0", ErrSchemaMismatch, index, key)
		}
	}
	return nil
}

// Columns returns the column names in first-record order.
func (s *Shape) Columns() []string { return s.columns }

// Indexes returns each shape column's position in the table's Columns.
func (s *Shape) Indexes() []int { return s.indexes }

// Args returns the row's query arguments for the shape's columns.
func (s *Shape) Args(r Row) []any {
	args := make([]any, len(s.indexes))
	for i, idx := range s.indexes {
		args[i] = r.Values[idx].Arg()
	}
	return args
}
