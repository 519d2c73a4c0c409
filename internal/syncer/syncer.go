// Package syncer implements full-table replacement of reference tables
// from caller-supplied record sets.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/refdata/internal/archive"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/tables"
	"github.com/hyperengineering/refdata/internal/validation"
)

var (
	// ErrInvalidTarget is returned for a table outside the catalog.
	ErrInvalidTarget = errors.New("invalid sync target")

	// ErrEmptyPayload is returned for a sync with no records.
	ErrEmptyPayload = errors.New("empty payload")
)

// maxFieldErrors bounds the field errors reported for one payload.
const maxFieldErrors = 100

// Loader replaces a table's contents atomically.
type Loader interface {
	ReplaceTable(ctx context.Context, t *tables.Table, shape *record.Shape, rows []record.Row) (store.ReplaceResult, error)
}

// SyncLog records sync attempts.
type SyncLog interface {
	RecordSync(ctx context.Context, e store.SyncLogEntry) error
}

// Invalidator drops cached reads of a table.
type Invalidator interface {
	InvalidateTable(ctx context.Context, table string)
}

// Archiver receives committed payloads.
type Archiver interface {
	Enqueue(job archive.Job) bool
}

// Result describes a committed sync.
type Result struct {
	SyncID           string
	Table            string
	Inserted         int
	ClearMethod      string
	Strategy         string
	Duration         time.Duration
	RecordsPerSecond float64
	FinishedAt       time.Time
}

// Service runs syncs. Syncs of the same table are serialised; syncs of
// different tables run concurrently.
type Service struct {
	loader      Loader
	log         SyncLog
	invalidator Invalidator
	archiver    Archiver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSyncLog records every attempt that reaches storage.
func WithSyncLog(l SyncLog) Option {
	return func(s *Service) { s.log = l }
}

// WithArchiver hands every committed payload to a.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// NewService returns a Service that loads through loader and invalidates
// through inv after each commit.
func NewService(loader Loader, inv Invalidator, opts ...Option) *Service {
	s := &Service{
		loader:      loader,
		invalidator: inv,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replace validates records against the table and replaces its contents.
// Validation errors are returned before any storage work. On a storage
// failure the table is unchanged and the cache is left alone.
func (s *Service) Replace(ctx context.Context, table string, records []record.WireRecord) (Result, error) {
	t, ok := tables.Lookup(table)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q is not a known table", ErrInvalidTarget, table)
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("%w: no records supplied for %s", ErrEmptyPayload, table)
	}

	shape, rows, err := prepare(t, records)
	if err != nil {
		return Result{}, err
	}

	unlock := s.lock(t.Name)
	defer unlock()

	syncID := ulid.Make().String()
	started := time.Now().UTC()

	res, err := s.loader.ReplaceTable(ctx, t, shape, rows)
	finished := time.Now().UTC()
	if err != nil {
		slog.Error("sync failed",
			"component", "syncer",
			"action", "replace",
			"table", t.Name,
			"sync_id", syncID,
			"records", len(rows),
			"error", err,
		)
		s.record(ctx, store.SyncLogEntry{
			ID:         syncID,
			Table:      t.Name,
			Records:    0,
			Duration:   finished.Sub(started),
			Status:     store.SyncFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: finished,
		})
		return Result{}, err
	}

	s.invalidator.InvalidateTable(ctx, t.Name)

	s.record(ctx, store.SyncLogEntry{
		ID:         syncID,
		Table:      t.Name,
		Records:    res.Inserted,
		Duration:   res.Duration,
		Status:     store.SyncSuccess,
		StartedAt:  started,
		FinishedAt: finished,
	})

	if s.archiver != nil {
		if !s.archiver.Enqueue(archive.Job{SyncID: syncID, Table: t.Name, Records: records, CompletedAt: finished}) {
			slog.Warn("sync archive queue full, payload not archived",
				"component", "syncer",
				"table", t.Name,
				"sync_id", syncID,
			)
		}
	}

	result := Result{
		SyncID:      syncID,
		Table:       t.Name,
		Inserted:    res.Inserted,
		ClearMethod: res.Cleared,
		Strategy:    res.Strategy,
		Duration:    res.Duration,
		FinishedAt:  finished,
	}
	if secs := res.Duration.Seconds(); secs > 0 {
		result.RecordsPerSecond = float64(res.Inserted) / secs
	}

	slog.Info("sync completed",
		"component", "syncer",
		"action", "replace",
		"table", t.Name,
		"sync_id", syncID,
		"records", res.Inserted,
		"clear", res.Cleared,
		"strategy", res.Strategy,
		"duration_ms", res.Duration.Milliseconds(),
	)

	return result, nil
}

// prepare checks every record against the first record's column set and
// decodes them into typed rows.
func prepare(t *tables.Table, records []record.WireRecord) (*record.Shape, []record.Row, error) {
	shape, err := record.NewShape(t, records[0])
	if err != nil {
		return nil, nil, err
	}
	for i := 1; i < len(records); i++ {
		if err := shape.Check(i, records[i]); err != nil {
			return nil, nil, err
		}
	}

	c := validation.NewCollector(maxFieldErrors)
	rows := make([]record.Row, len(records))
	for i, w := range records {
		row, err := record.Decode(t, w)
		if err != nil {
			var fe *record.FieldErrors
			if !errors.As(err, &fe) {
				return nil, nil, err
			}
			for _, e := range fe.Errors {
				c.Add(&validation.ValidationError{Field: validation.Field(i, e.Field), Message: e.Message})
			}
			continue
		}
		rows[i] = row
	}
	if c.HasErrors() {
		return nil, nil, &record.FieldErrors{Errors: c.Errors()}
	}
	return shape, rows, nil
}

// lock serialises syncs of one table.
func (s *Service) lock(table string) func() {
	s.mu.Lock()
	l, ok := s.locks[table]
	if !ok {
		l = &sync.Mutex{}
		s.locks[table] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// record writes a sync log entry. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, e store.SyncLogEntry) {
	if s.log == nil {
		return
	}
	if err := s.log.RecordSync(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("failed to record sync",
			"component", "syncer",
			"table", e.Table,
			"sync_id", e.ID,
			"error", err,
		)
	}
}
