// Package cache holds serialised read responses keyed by entity, page and
// filters. Entries expire after a per-entity TTL and are invalidated per
// table whenever a sync of that table commits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/refdata/internal/tables"
)

// ErrCacheUnavailable marks a provider failure. The coordinator never
// returns it to readers; it is logged and the operation degrades to a
// miss or a skipped store.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Entry is one stored value.
type Entry struct {
	Table     string
	Value     []byte
	FreshAt   time.Time
	ExpiresAt time.Time
}

// Provider is a key/value backend for the Coordinator.
type Provider interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	DeleteTable(ctx context.Context, table string) (int, error)
	Clear(ctx context.Context) (int, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Provider      string `json:"provider"`
	Entries       int    `json:"entries"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	Stores        int64  `json:"stores"`
	Invalidations int64  `json:"invalidations"`
	Errors        int64  `json:"errors"`
}

// Coordinator decides whether a cached value may be served.
//
// A value is valid only while now is before its expiry and its freshness
// timestamp is after the last invalidation of its table. Readers take the
// freshness timestamp before running their query, so a value computed
// while a sync was committing is never served once that sync finishes.
type Coordinator struct {
	provider Provider
	now      func() time.Time

	mu         sync.RWMutex
	watermarks map[string]time.Time
	global     time.Time

	hits, misses, stores, invalidations, errs atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New returns a Coordinator over p.
func New(p Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider:   p,
		now:        time.Now,
		watermarks: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the coordinator clock. Readers use it to take the freshness
// timestamp before querying.
func (c *Coordinator) Now() time.Time { return c.now() }

// Get returns the value under key if it is still valid.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool, time.Time) {
	e, found, err := c.provider.Get(ctx, key)
	if err != nil {
		c.fail("get", key, err)
		c.misses.Add(1)
		return nil, false, time.Time{}
	}
	if !found {
		c.misses.Add(1)
		return nil, false, time.Time{}
	}

	if !c.valid(e) {
		c.misses.Add(1)
		if err := c.provider.Delete(ctx, key); err != nil {
			c.fail("delete", key, err)
		}
		return nil, false, time.Time{}
	}

	c.hits.Add(1)
	return e.Value, true, e.FreshAt
}

// Put stores value under key. fresh must be taken before the data was
// read. Values already older than the table's last invalidation are
// dropped.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte, fresh time.Time, ttl time.Duration) {
	table := TableOf(key)
	e := Entry{Table: table, Value: value, FreshAt: fresh, ExpiresAt: fresh.Add(ttl)}
	if ttl <= 0 || !c.valid(e) {
		return
	}
	if err := c.provider.Set(ctx, key, e); err != nil {
		c.fail("set", key, err)
		return
	}
	c.stores.Add(1)
}

// InvalidateTable marks every entry of table stale and removes it.
func (c *Coordinator) InvalidateTable(ctx context.Context, table string) {
	c.mu.Lock()
	c.watermarks[table] = c.now()
	c.mu.Unlock()
	c.invalidations.Add(1)

	n, err := c.provider.DeleteTable(ctx, table)
	if err != nil {
		c.fail("invalidate", table, err)
		return
	}
	slog.Info("cache invalidated",
		"component", "cache",
		"action", "invalidate",
		"table", table,
		"entries", n,
	)
}

// InvalidateAll marks every entry stale and clears the provider.
func (c *Coordinator) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.global = c.now()
	c.mu.Unlock()
	c.invalidations.Add(1)

	n, err := c.provider.Clear(ctx)
	if err != nil {
		c.fail("clear", "*", err)
		return
	}
	slog.Info("cache cleared",
		"component", "cache",
		"action", "clear",
		"entries", n,
	)
}

// Sweep removes expired entries and returns how many were removed.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	n, err := c.provider.Sweep(ctx, c.now())
	if err != nil {
		c.errs.Add(1)
		return 0, fmt.Errorf("%w: sweep: %v", ErrCacheUnavailable, err)
	}
	return n, nil
}

// Stats returns the current counters.
func (c *Coordinator) Stats(ctx context.Context) Stats {
	s := Stats{
		Provider:      c.provider.Name(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Stores:        c.stores.Load(),
		Invalidations: c.invalidations.Load(),
		Errors:        c.errs.Load(),
	}
	if n, err := c.provider.Len(ctx); err == nil {
		s.Entries = n
	}
	return s
}

func (c *Coordinator) valid(e Entry) bool {
	now := c.now()
	if !now.Before(e.ExpiresAt) {
		return false
	}

	c.mu.RLock()
	mark, ok := c.watermarks[e.Table]
	global := c.global
	c.mu.RUnlock()

	if ok && !e.FreshAt.After(mark) {
		return false
	}
	return global.IsZero() || e.FreshAt.After(global)
}

func (c *Coordinator) fail(action, key string, err error) {
	c.errs.Add(1)
	slog.Warn("cache provider error",
		"component", "cache",
		"action", action,
		"key", key,
		"error", fmt.Errorf("%w: %v", ErrCacheUnavailable, err),
	)
}

// Key builds the cache key for a paginated listing. Filters are added in
// sorted order so equivalent requests share a key.
func Key(entity string, page, size int, search string, filters map[string]string) string {
	h := fnv.New64a()
	h.Write([]byte(search))

	var b strings.Builder
	fmt.Fprintf(&b, "%s:p%d:s%d:%016x", entity, page, size, h.Sum64())

	if len(filters) > 0 {
		names := make([]string, 0, len(filters))
		for name := range filters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if v := filters[name]; v != "" {
				b.WriteString(":" + name + "=" + strings.ToLower(v))
			}
		}
	}
	return b.String()
}

// TableOf returns the table a key belongs to, from its entity prefix.
func TableOf(key string) string {
	entity, _, _ := strings.Cut(key, ":")
	if t, ok := tables.LookupEntity(entity); ok {
		return t.Name
	}
	return entity
}
