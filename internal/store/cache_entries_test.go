package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheEntries_PutGetReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_800_000_000, 123)

	e := CacheEntry{Key: "products:p1:s50:abc", Table: "acc_product", Payload: []byte(`{"a":1}`), FreshAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := s.PutCacheEntry(ctx, e); err != nil {
		t.Fatalf("PutCacheEntry() error = %v", err)
	}

	e.Payload = []byte(`{"a":2}`)
	if err := s.PutCacheEntry(ctx, e); err != nil {
		t.Fatalf("PutCacheEntry(replace) error = %v", err)
	}

	got, err := s.GetCacheEntry(ctx, e.Key)
	if err != nil {
		t.Fatalf("GetCacheEntry() error = %v", err)
	}
	if string(got.Payload) != `{"a":2}` {
		t.Errorf("Payload = %s, want replaced payload", got.Payload)
	}
	if !got.FreshAt.Equal(now) || !got.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Errorf("times = %v / %v", got.FreshAt, got.ExpiresAt)
	}

	if _, err := s.GetCacheEntry(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCacheEntry(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCacheEntries_DeleteByTableAndExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	put := func(key, table string, ttl time.Duration) {
		t.Helper()
		if err := s.PutCacheEntry(ctx, CacheEntry{Key: key, Table: table, Payload: []byte("x"), FreshAt: now, ExpiresAt: now.Add(ttl)}); err != nil {
			t.Fatalf("PutCacheEntry(%s) error = %v", key, err)
		}
	}
	put("clients:1", "rrc_clients", time.Minute)
	put("clients:2", "rrc_clients", -time.Second)
	put("master:1", "acc_master", time.Minute)
	put("products:1", "acc_product", -time.Second)

	n, err := s.DeleteExpiredCacheEntries(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("DeleteExpiredCacheEntries() = %d, %v; want 2", n, err)
	}

	n, err = s.DeleteCacheEntries(ctx, "rrc_clients")
	if err != nil || n != 1 {
		t.Fatalf("DeleteCacheEntries(rrc_clients) = %d, %v; want 1", n, err)
	}

	count, _ := s.CountCacheEntries(ctx)
	if count != 1 {
		t.Errorf("CountCacheEntries() = %d, want 1", count)
	}

	n, err = s.DeleteCacheEntries(ctx, "")
	if err != nil || n != 1 {
		t.Errorf("DeleteCacheEntries(all) = %d, %v; want 1", n, err)
	}
}
