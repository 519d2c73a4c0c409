package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/tables"
)

// Equal is a case-insensitive equality condition on one column.
type Equal struct {
	Column string
	Value  string
}

// Criteria selects rows of one table. The same criteria always produce
// the same WHERE clause for counting and for fetching.
type Criteria struct {
	// Search is matched as a substring of any SearchFields column.
	Search       string
	SearchFields []string

	Equals []Equal

	// Positive keeps only rows whose computed value is greater than zero.
	Positive *tables.Computed
}

// Reader counts and fetches rows of a table.
type Reader interface {
	Count(ctx context.Context, t *tables.Table, c Criteria) (int64, error)
	Select(ctx context.Context, t *tables.Table, c Criteria, limit, offset int) ([]record.Row, error)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// snapshotReader reads inside one ReadSnapshot transaction.
type snapshotReader struct {
	s *SQLStore
	q queryer
}

func (r snapshotReader) Count(ctx context.Context, t *tables.Table, c Criteria) (int64, error) {
	return r.s.count(ctx, r.q, t, c)
}

func (r snapshotReader) Select(ctx context.Context, t *tables.Table, c Criteria, limit, offset int) ([]record.Row, error) {
	return r.s.selectRows(ctx, r.q, t, c, limit, offset)
}

// ReadSnapshot runs fn against a single consistent view of the database.
// A ReplaceTable committed while fn runs is not visible to it, so a count
// and the page that follows it always describe the same table contents.
func (s *SQLStore) ReadSnapshot(ctx context.Context, fn func(Reader) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.snapshotOptions())
	if err != nil {
		return fmt.Errorf("%w: begin read: %v", ErrStorageFailure, err)
	}
	defer rollback(tx, "read", "")

	if err := fn(snapshotReader{s: s, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit read: %v", ErrStorageFailure, err)
	}
	return nil
}

// where renders the WHERE clause and its arguments.
func (s *SQLStore) where(c Criteria, a *args) string {
	var conds []string

	if c.Search != "" && len(c.SearchFields) > 0 {
		ors := make([]string, len(c.SearchFields))
		for i, f := range c.SearchFields {
			ors[i] = s.dialect.containsFold(f, a, c.Search)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	for _, eq := range c.Equals {
		conds = append(conds, s.dialect.equalFold(eq.Column, a, eq.Value))
	}

	if c.Positive != nil {
		conds = append(conds, computedExpr(*c.Positive)+" > 0")
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// computedExpr renders a computed column with nulls as zero, rounded to
// the column scale so float storage cannot leave residue around zero.
func computedExpr(c tables.Computed) string {
	var b strings.Builder
	b.WriteString("ROUND(")
	for i, name := range c.Plus {
		if i > 0 {
			b.WriteString(" + ")
		}
		b.WriteString("COALESCE(" + name + ", 0)")
	}
	if len(c.Plus) == 0 {
		b.WriteString("0")
	}
	for _, name := range c.Minus {
		b.WriteString(" - COALESCE(" + name + ", 0)")
	}
	b.WriteString(", " + strconv.Itoa(c.Scale) + ")")
	return b.String()
}

// Count returns the number of rows of t matching c.
func (s *SQLStore) Count(ctx context.Context, t *tables.Table, c Criteria) (int64, error) {
	return s.count(ctx, s.db, t, c)
}

func (s *SQLStore) count(ctx context.Context, db queryer, t *tables.Table, c Criteria) (int64, error) {
	a := &args{d: s.dialect}
	q := "SELECT COUNT(*) FROM " + t.Name + s.where(c, a)

	var n int64
	if err := db.QueryRowContext(ctx, q, a.vals...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", ErrStorageFailure, t.Name, err)
	}
	return n, nil
}

// Select returns the rows of t matching c ordered by name then insertion
// order. A limit of zero or less returns every matching row.
func (s *SQLStore) Select(ctx context.Context, t *tables.Table, c Criteria, limit, offset int) ([]record.Row, error) {
	return s.selectRows(ctx, s.db, t, c, limit, offset)
}

func (s *SQLStore) selectRows(ctx context.Context, db queryer, t *tables.Table, c Criteria, limit, offset int) ([]record.Row, error) {
	a := &args{d: s.dialect}
	q := "SELECT " + strings.Join(t.ColumnNames(), ", ") + " FROM " + t.Name + s.where(c, a) +
		" ORDER BY name ASC NULLS LAST, id ASC"
	if limit > 0 {
		q += " LIMIT " + a.add(limit) + " OFFSET " + a.add(offset)
	}

	rows, err := db.QueryContext(ctx, q, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrStorageFailure, t.Name, err)
	}
	defer rows.Close()

	var out []record.Row
	raw := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorageFailure, t.Name, err)
		}
		row := record.NewRow(t)
		for i, col := range t.Columns {
			v, err := record.FromSQL(col, raw[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrStorageFailure, t.Name, err)
			}
			row.Values[i] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrStorageFailure, t.Name, err)
	}
	return out, nil
}

// CountRows returns the total number of rows stored in t.
func (s *SQLStore) CountRows(ctx context.Context, t *tables.Table) (int64, error) {
	return s.Count(ctx, t, Criteria{})
}
