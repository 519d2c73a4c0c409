package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/tables"
)

// Clear methods reported in ReplaceResult.
const (
	ClearTruncate = "truncate"
	ClearDelete   = "delete"
)

// Insert strategies, in the order they are attempted.
const (
	StrategyCopy     = "copy"
	StrategyMultiRow = "multi-row"
	StrategyRow      = "row"
)

// errSavepointLost marks a failed ROLLBACK TO SAVEPOINT. The transaction
// can no longer be used and no further fallback is attempted.
var errSavepointLost = errors.New("savepoint rollback failed")

// ReplaceResult describes a committed table replacement.
type ReplaceResult struct {
	Inserted int
	Cleared  string
	Strategy string
	Duration time.Duration
}

// txExec is satisfied by *sql.Tx.
type txExec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertStrategy loads rows into a freshly cleared table inside the
// current transaction.
type insertStrategy struct {
	name string
	run  func(ctx context.Context, l *load) error
}

// load is the state of one replacement.
type load struct {
	conn  *sql.Conn
	tx    txExec
	table *tables.Table
	shape *record.Shape
	rows  []record.Row
}

// ReplaceTable clears t and inserts rows in a single transaction on one
// pinned connection. Readers see either the old contents or the new ones.
// Any failure rolls the transaction back and is returned wrapped in
// ErrStorageFailure.
func (s *SQLStore) ReplaceTable(ctx context.Context, t *tables.Table, shape *record.Shape, rows []record.Row) (ReplaceResult, error) {
	start := time.Now()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: acquire connection: %v", ErrStorageFailure, err)
	}
	defer conn.Close()

	copyOK := s.dialect.Copy && copySupported(ctx, conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: begin: %v", ErrStorageFailure, err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(tx, "replace", t.Name)
		}
	}()

	l := &load{conn: conn, tx: tx, table: t, shape: shape, rows: rows}

	cleared, err := s.clear(ctx, l)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: clear %s: %w", ErrStorageFailure, t.Name, err)
	}

	strategies := make([]insertStrategy, 0, 3)
	if copyOK {
		strategies = append(strategies, insertStrategy{StrategyCopy, s.insertCopy})
	}
	strategies = append(strategies,
		insertStrategy{StrategyMultiRow, s.insertMultiRow},
		insertStrategy{StrategyRow, s.insertRows},
	)

	used, err := s.insert(ctx, l, strategies)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: insert into %s: %w", ErrStorageFailure, t.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: commit %s: %v", ErrStorageFailure, t.Name, err)
	}
	committed = true

	return ReplaceResult{
		Inserted: len(rows),
		Cleared:  cleared,
		Strategy: used,
		Duration: time.Since(start),
	}, nil
}

// clear empties the table, preferring TRUNCATE and falling back to DELETE
// within the same transaction.
func (s *SQLStore) clear(ctx context.Context, l *load) (string, error) {
	if s.dialect.Truncate {
		err := withSavepoint(ctx, l.tx, "refdata_clear", func() error {
			_, err := l.tx.ExecContext(ctx, "TRUNCATE TABLE "+l.table.Name+" RESTART IDENTITY")
			return err
		})
		if err == nil {
			return ClearTruncate, nil
		}
		if errors.Is(err, errSavepointLost) {
			return "", err
		}
		slog.Warn("truncate failed, falling back to delete",
			"component", "store",
			"action", "clear",
			"table", l.table.Name,
			"error", err,
		)
	}

	if _, err := l.tx.ExecContext(ctx, "DELETE FROM "+l.table.Name); err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}
	return ClearDelete, nil
}

// insert tries each strategy inside its own savepoint and returns the
// name of the first that succeeds, or the last error.
func (s *SQLStore) insert(ctx context.Context, l *load, strategies []insertStrategy) (string, error) {
	var lastErr error
	for _, st := range strategies {
		err := withSavepoint(ctx, l.tx, "refdata_"+strings.ReplaceAll(st.name, "-", "_"), func() error {
			return st.run(ctx, l)
		})
		if err == nil {
			return st.name, nil
		}
		lastErr = fmt.Errorf("%s: %w", st.name, err)
		if errors.Is(err, errSavepointLost) || ctx.Err() != nil {
			break
		}
		slog.Warn("insert strategy failed, falling back",
			"component", "store",
			"action", "insert",
			"table", l.table.Name,
			"strategy", st.name,
			"error", err,
		)
	}
	return "", lastErr
}

// rollback ends tx and logs a failure other than the transaction having
// already finished.
func rollback(tx *sql.Tx, action, table string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Debug("rollback failed",
			"component", "store",
			"action", action,
			"table", table,
			"error", err,
		)
	}
}

// withSavepoint runs fn so that its failure leaves the transaction as it
// was before fn started.
func withSavepoint(ctx context.Context, tx txExec, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: savepoint: %v", errSavepointLost, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w: %v (after %v)", errSavepointLost, rbErr, err)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: release: %v", errSavepointLost, err)
	}
	return nil
}

// insertMultiRow loads rows with batched multi-row VALUES statements.
func (s *SQLStore) insertMultiRow(ctx context.Context, l *load) error {
	cols := l.shape.Columns()
	size := s.batchSize
	if limit := s.dialect.MaxParams / len(cols); size > limit {
		size = limit
	}

	for start, batch := 0, 0; start < len(l.rows); start, batch = start+size, batch+1 {
		end := start + size
		if end > len(l.rows) {
			end = len(l.rows)
		}

		a := &args{d: s.dialect}
		tuples := make([]string, 0, end-start)
		for _, row := range l.rows[start:end] {
			ph := make([]string, len(cols))
			for i, v := range l.shape.Args(row) {
				ph[i] = a.add(v)
			}
			tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
		}

		q := insertPrefix(l.table, cols) + strings.Join(tuples, ", ")
		if _, err := l.tx.ExecContext(ctx, q, a.vals...); err != nil {
			return fmt.Errorf("batch %d (records %d-%d): %w", batch, start, end-1, err)
		}
	}
	return nil
}

// insertRows loads one record per statement.
func (s *SQLStore) insertRows(ctx context.Context, l *load) error {
	cols := l.shape.Columns()
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = s.dialect.Placeholder(i + 1)
	}
	q := insertPrefix(l.table, cols) + "(" + strings.Join(ph, ", ") + ")"

	for i, row := range l.rows {
		if _, err := l.tx.ExecContext(ctx, q, l.shape.Args(row)...); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func insertPrefix(t *tables.Table, cols []string) string {
	return "INSERT INTO " + t.Name + " (" + strings.Join(cols, ", ") + ") VALUES "
}
