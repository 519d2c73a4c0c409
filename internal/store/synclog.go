package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sync statuses written to sync_log.
const (
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// SyncLogEntry is one sync attempt that reached storage.
type SyncLogEntry struct {
	ID         string        `json:"id"`
	Table      string        `json:"table"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"-"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RecordSync appends an entry to sync_log.
func (s *SQLStore) RecordSync(ctx context.Context, e SyncLogEntry) error {
	a := &args{d: s.dialect}
	ph := []string{
		a.add(e.ID),
		a.add(e.Table),
		a.add(e.Records),
		a.add(e.Duration.Milliseconds()),
		a.add(e.Status),
		a.add(nullString(e.Error)),
		a.add(e.StartedAt.UTC().Format(time.RFC3339Nano)),
		a.add(e.FinishedAt.UTC().Format(time.RFC3339Nano)),
	}
	q := "INSERT INTO sync_log (id, table_name, records, duration_ms, status, error, started_at, finished_at) VALUES (" +
		strings.Join(ph, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, q, a.vals...); err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

// SyncHistory returns the most recent entries for table, newest first.
// Entry IDs are ULIDs, so id order is attempt order.
func (s *SQLStore) SyncHistory(ctx context.Context, table string, limit int) ([]SyncLogEntry, error) {
	a := &args{d: s.dialect}
	q := "SELECT id, table_name, records, duration_ms, status, error, started_at, finished_at FROM sync_log WHERE table_name = " +
		a.add(table) + " ORDER BY id DESC LIMIT " + a.add(limit)

	rows, err := s.db.QueryContext(ctx, q, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("sync history: %w", err)
	}
	defer rows.Close()

	var out []SyncLogEntry
	for rows.Next() {
		e, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastSync returns the newest successful sync of table.
func (s *SQLStore) LastSync(ctx context.Context, table string) (*SyncLogEntry, error) {
	a := &args{d: s.dialect}
	q := "SELECT id, table_name, records, duration_ms, status, error, started_at, finished_at FROM sync_log WHERE table_name = " +
		a.add(table) + " AND status = " + a.add(SyncSuccess) + " ORDER BY id DESC LIMIT 1"

	e, err := scanSyncLog(s.db.QueryRowContext(ctx, q, a.vals...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSyncLog(sc scanner) (SyncLogEntry, error) {
	var (
		e                 SyncLogEntry
		durationMS        int64
		errText           sql.NullString
		started, finished any
	)
	if err := sc.Scan(&e.ID, &e.Table, &e.Records, &durationMS, &e.Status, &errText, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan sync log: %w", err)
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.Error = errText.String

	var err error
	if e.StartedAt, err = parseTimestamp(started); err != nil {
		return e, err
	}
	if e.FinishedAt, err = parseTimestamp(finished); err != nil {
		return e, err
	}
	return e, nil
}

// timestampLayouts covers what may come back from a TEXT timestamp column.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimestampString(t)
	case []byte:
		return parseTimestampString(string(t))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %T", v)
}

func parseTimestampString(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
