package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/refdata/internal/archive"
)

// mockUploader implements archive.Uploader for testing
type mockUploader struct {
	mu       sync.Mutex
	uploaded []archive.Job
	failFor  string
	deadline bool
}

func (m *mockUploader) Upload(ctx context.Context, job archive.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		m.deadline = true
	}
	if job.Table == m.failFor {
		return errors.New("bucket unreachable")
	}
	m.uploaded = append(m.uploaded, job)
	return nil
}

func (m *mockUploader) snapshot() ([]archive.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archive.Job{}, m.uploaded...), m.deadline
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1 second")
}

func TestArchiveWorker_UploadsQueuedJobs(t *testing.T) {
	// Given: Two jobs already queued
	q := archive.NewQueue(4)
	q.Enqueue(archive.Job{SyncID: "a", Table: "rrc_clients"})
	q.Enqueue(archive.Job{SyncID: "b", Table: "acc_master"})
	up := &mockUploader{}

	// When: The worker runs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewArchiveWorker(q.Jobs(), up, 0).Run(ctx)

	// Then: Both are uploaded in order with a bounded context
	waitFor(t, func() bool {
		jobs, _ := up.snapshot()
		return len(jobs) == 2
	})
	jobs, deadline := up.snapshot()
	if jobs[0].SyncID != "a" || jobs[1].SyncID != "b" {
		t.Errorf("upload order = %s,%s, want a,b", jobs[0].SyncID, jobs[1].SyncID)
	}
	if !deadline {
		t.Error("upload context should carry a deadline")
	}
}

func TestArchiveWorker_ContinuesAfterFailure(t *testing.T) {
	q := archive.NewQueue(4)
	q.Enqueue(archive.Job{SyncID: "a", Table: "acc_product"})
	q.Enqueue(archive.Job{SyncID: "b", Table: "rrc_clients"})
	up := &mockUploader{failFor: "acc_product"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewArchiveWorker(q.Jobs(), up, time.Second).Run(ctx)

	waitFor(t, func() bool {
		jobs, _ := up.snapshot()
		return len(jobs) == 1
	})
	jobs, _ := up.snapshot()
	if jobs[0].SyncID != "b" {
		t.Errorf("uploaded %q, want b", jobs[0].SyncID)
	}
}

func TestArchiveWorker_GracefulShutdown(t *testing.T) {
	q := archive.NewQueue(1)
	worker := NewArchiveWorker(q.Jobs(), &archive.NoopUploader{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Worker did not stop within 1 second")
	}
}

func TestNewArchiveWorker_DefaultTimeout(t *testing.T) {
	w := NewArchiveWorker(nil, &archive.NoopUploader{}, 0)
	if w.timeout != DefaultUploadTimeout {
		t.Errorf("timeout = %v, want %v", w.timeout, DefaultUploadTimeout)
	}
}
