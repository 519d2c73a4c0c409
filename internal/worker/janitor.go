package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired cache entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// CacheJanitor periodically purges expired entries from the read cache.
// Expired entries are already misses; the janitor only reclaims space.
type CacheJanitor struct {
	cache    Sweeper
	interval time.Duration
}

// NewCacheJanitor creates a janitor sweeping cache every interval.
func NewCacheJanitor(cache Sweeper, interval time.Duration) *CacheJanitor {
	return &CacheJanitor{
		cache:    cache,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start.
func (w *CacheJanitor) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "cache-janitor",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "cache-janitor",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep executes a single sweep cycle.
func (w *CacheJanitor) sweep(ctx context.Context) {
	start := time.Now()

	removed, err := w.cache.Sweep(ctx)
	if err != nil {
		// Check for graceful shutdown
		if ctx.Err() != nil {
			return
		}
		slog.Warn("cache sweep failed",
			"component", "worker",
			"action", "sweep_failed",
			"error", err,
		)
		return
	}

	slog.Debug("cache sweep completed",
		"component", "worker",
		"action", "sweep_complete",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
