package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/refdata/internal/archive"
)

// DefaultUploadTimeout bounds a single archive upload.
const DefaultUploadTimeout = 2 * time.Minute

// ArchiveWorker drains the archive queue and uploads each committed sync.
// Upload failures are logged and the job is dropped; the reference tables
// remain the source of truth.
type ArchiveWorker struct {
	jobs     <-chan archive.Job
	uploader archive.Uploader
	timeout  time.Duration
}

// NewArchiveWorker creates a worker reading jobs and handing them to uploader.
func NewArchiveWorker(jobs <-chan archive.Job, uploader archive.Uploader, timeout time.Duration) *ArchiveWorker {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &ArchiveWorker{
		jobs:     jobs,
		uploader: uploader,
		timeout:  timeout,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *ArchiveWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-archive",
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-archive",
				"reason", "context_cancelled",
				"pending", len(w.jobs),
			)
			return
		case job := <-w.jobs:
			w.upload(ctx, job)
		}
	}
}

// upload performs one upload and logs the outcome.
func (w *ArchiveWorker) upload(ctx context.Context, job archive.Job) {
	start := time.Now()
	uctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.uploader.Upload(uctx, job); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("sync archive upload failed",
			"component", "worker",
			"action", "archive_failed",
			"table", job.Table,
			"sync_id", job.SyncID,
			"error", err,
		)
		return
	}

	slog.Info("sync archived",
		"component", "worker",
		"action", "archive_complete",
		"table", job.Table,
		"sync_id", job.SyncID,
		"records", len(job.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
