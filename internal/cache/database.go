package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hyperengineering/refdata/internal/store"
)

// EntryStore persists cache entries. *store.SQLStore satisfies it.
type EntryStore interface {
	GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e store.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteCacheEntries(ctx context.Context, table string) (int64, error)
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
	CountCacheEntries(ctx context.Context) (int64, error)
}

// DatabaseProvider keeps entries in the cache_entries table so they are
// shared by every process using the same database.
type DatabaseProvider struct {
	store EntryStore
}

// NewDatabaseProvider returns a provider backed by s.
func NewDatabaseProvider(s EntryStore) *DatabaseProvider {
	return &DatabaseProvider{store: s}
}

func (d *DatabaseProvider) Name() string { return "database" }

func (d *DatabaseProvider) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, err := d.store.GetCacheEntry(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Table: e.Table, Value: e.Payload, FreshAt: e.FreshAt, ExpiresAt: e.ExpiresAt}, true, nil
}

func (d *DatabaseProvider) Set(ctx context.Context, key string, e Entry) error {
	return d.store.PutCacheEntry(ctx, store.CacheEntry{
		Key:       key,
		Table:     e.Table,
		Payload:   e.Value,
		FreshAt:   e.FreshAt,
		ExpiresAt: e.ExpiresAt,
	})
}

func (d *DatabaseProvider) Delete(ctx context.Context, key string) error {
	return d.store.DeleteCacheEntry(ctx, key)
}

func (d *DatabaseProvider) DeleteTable(ctx context.Context, table string) (int, error) {
	n, err := d.store.DeleteCacheEntries(ctx, table)
	return int(n), err
}

func (d *DatabaseProvider) Clear(ctx context.Context) (int, error) {
	n, err := d.store.DeleteCacheEntries(ctx, "")
	return int(n), err
}

func (d *DatabaseProvider) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := d.store.DeleteExpiredCacheEntries(ctx, now)
	return int(n), err
}

func (d *DatabaseProvider) Len(ctx context.Context) (int, error) {
	n, err := d.store.CountCacheEntries(ctx)
	return int(n), err
}

// NewProvider builds the provider named by backend: "memory" or "database".
func NewProvider(backend string, s EntryStore, maxEntries int) (Provider, error) {
	switch backend {
	case "", "memory":
		return NewMemoryProvider(maxEntries), nil
	case "database":
		if s == nil {
			return nil, errors.New("database cache provider needs a store")
		}
		return NewDatabaseProvider(s), nil
	default:
		return nil, errors.New("unknown cache backend: " + backend)
	}
}
