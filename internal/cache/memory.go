package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the memory provider.
const DefaultMaxEntries = 10000

// cullFraction is the share of entries dropped when the memory provider
// is full: one in every cullFraction.
const cullFraction = 3

// MemoryProvider keeps entries in a bounded map.
type MemoryProvider struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int
}

// NewMemoryProvider returns an empty provider holding at most maxEntries.
// A non-positive maxEntries uses DefaultMaxEntries.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryProvider{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
	}
}

func (m *MemoryProvider) Name() string { return "memory" }

func (m *MemoryProvider) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.cull(time.Now())
	}
	m.entries[key] = e
	return nil
}

// cull drops expired entries, then every cullFraction-th entry if the
// map is still full. Callers hold the write lock.
func (m *MemoryProvider) cull(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	i := 0
	for k := range m.entries {
		if i%cullFraction == 0 {
			delete(m.entries, k)
		}
		i++
	}
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryProvider) DeleteTable(_ context.Context, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if e.Table == table {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryProvider) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	m.entries = make(map[string]Entry)
	return n, nil
}

func (m *MemoryProvider) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryProvider) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
