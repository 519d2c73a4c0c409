package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/tables"
)

var errCopyUnsupported = errors.New("bulk copy not supported by driver connection")

// copySupported reports whether the pinned connection is a pgx connection.
func copySupported(ctx context.Context, conn *sql.Conn) bool {
	err := conn.Raw(func(dc any) error {
		if _, ok := dc.(*stdlib.Conn); !ok {
			return errCopyUnsupported
		}
		return nil
	})
	return err == nil
}

// insertCopy streams rows with the postgres COPY protocol on the pinned
// connection. The COPY runs inside the transaction already open on it.
func (s *SQLStore) insertCopy(ctx context.Context, l *load) error {
	src, err := copyRows(l)
	if err != nil {
		return err
	}

	return l.conn.Raw(func(dc any) error {
		pc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errCopyUnsupported
		}
		n, err := pc.Conn().CopyFrom(ctx, pgx.Identifier{l.table.Name}, l.shape.Columns(), pgx.CopyFromRows(src))
		if err != nil {
			return fmt.Errorf("copy records 0-%d: %w", len(l.rows)-1, err)
		}
		if int(n) != len(l.rows) {
			return fmt.Errorf("copy wrote %d of %d records", n, len(l.rows))
		}
		return nil
	})
}

// copyRows converts rows into the binary-encodable values pgx expects.
func copyRows(l *load) ([][]any, error) {
	idx := l.shape.Indexes()
	out := make([][]any, len(l.rows))
	for r, row := range l.rows {
		vals := make([]any, len(idx))
		for i, ci := range idx {
			v, err := copyValue(l.table.Columns[ci], row.Values[ci])
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", r, err)
			}
			vals[i] = v
		}
		out[r] = vals
	}
	return out, nil
}

func copyValue(col tables.Column, v record.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch col.Kind {
	case tables.KindInteger:
		return v.Int(), nil
	case tables.KindDecimal:
		var n pgtype.Numeric
		if err := n.Scan(v.String()); err != nil {
			return nil, fmt.Errorf("%s: %w", col.Name, err)
		}
		return n, nil
	case tables.KindDate:
		return pgtype.Date{Time: v.Time(), Valid: true}, nil
	default:
		return v.String(), nil
	}
}
