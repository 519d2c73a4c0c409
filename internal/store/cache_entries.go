package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is a persisted read-cache entry. Times are kept as unix
// nanoseconds so both dialects compare them numerically.
type CacheEntry struct {
	Key       string
	Table     string
	Payload   []byte
	FreshAt   time.Time
	ExpiresAt time.Time
}

// GetCacheEntry returns the entry stored under key.
func (s *SQLStore) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	a := &args{d: s.dialect}
	q := "SELECT cache_key, table_name, payload, fresh_at, expires_at FROM cache_entries WHERE cache_key = " + a.add(key)

	var (
		e              CacheEntry
		fresh, expires int64
	)
	err := s.db.QueryRowContext(ctx, q, a.vals...).Scan(&e.Key, &e.Table, &e.Payload, &fresh, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	e.FreshAt = time.Unix(0, fresh)
	e.ExpiresAt = time.Unix(0, expires)
	return &e, nil
}

// PutCacheEntry inserts or replaces an entry.
func (s *SQLStore) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	a := &args{d: s.dialect}
	q := "INSERT INTO cache_entries (cache_key, table_name, payload, fresh_at, expires_at) VALUES (" +
		a.add(e.Key) + ", " + a.add(e.Table) + ", " + a.add(e.Payload) + ", " +
		a.add(e.FreshAt.UnixNano()) + ", " + a.add(e.ExpiresAt.UnixNano()) + ")" +
		" ON CONFLICT (cache_key) DO UPDATE SET table_name = excluded.table_name, payload = excluded.payload," +
		" fresh_at = excluded.fresh_at, expires_at = excluded.expires_at"
	if _, err := s.db.ExecContext(ctx, q, a.vals...); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes one entry.
func (s *SQLStore) DeleteCacheEntry(ctx context.Context, key string) error {
	a := &args{d: s.dialect}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE cache_key = "+a.add(key), a.vals...); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntries removes every entry of table, or every entry when
// table is empty. It returns the number removed.
func (s *SQLStore) DeleteCacheEntries(ctx context.Context, table string) (int64, error) {
	a := &args{d: s.dialect}
	q := "DELETE FROM cache_entries"
	if table != "" {
		q += " WHERE table_name = " + a.add(table)
	}
	res, err := s.db.ExecContext(ctx, q, a.vals...)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredCacheEntries removes entries that expired at or before now.
func (s *SQLStore) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	a := &args{d: s.dialect}
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= "+a.add(now.UnixNano()), a.vals...)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// CountCacheEntries returns the number of persisted entries.
func (s *SQLStore) CountCacheEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}
