package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/refdata/internal/api"
	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/syncer"
	"github.com/hyperengineering/refdata/pkg/refdata"
)

// testServer is an in-process service over a temp sqlite database.
type testServer struct {
	store  *store.SQLStore
	cache  *cache.Coordinator
	client *refdata.Client
	url    string
}

func ttl(entity string) time.Duration {
	if entity == "master" {
		return 30 * time.Minute
	}
	return 15 * time.Minute
}

// startServer wires the full stack the way the serve command does and
// exposes it through httptest.
func startServer(t *testing.T) *testServer {
	t.Helper()

	s, err := store.Open(context.Background(), store.Options{
		Driver:    "sqlite",
		Path:      filepath.Join(t.TempDir(), "refdata.db"),
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	c := cache.New(cache.NewMemoryProvider(0))
	sy := syncer.NewService(s, c, syncer.WithSyncLog(s))
	h := api.NewHandler(s, sy, query.NewService(s), c, ttl, "e2e")
	srv := httptest.NewServer(api.NewRouter(h, api.RouterOptions{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   10 << 20,
	}))

	client, err := refdata.New(srv.URL)
	if err != nil {
		t.Fatalf("refdata.New() error = %v", err)
	}

	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return &testServer{store: s, cache: c, client: client, url: srv.URL}
}

// mustSync replaces table with the JSON array data and fails the test on error.
func (s *testServer) mustSync(t *testing.T, table, data string) *refdata.SyncResponse {
	t.Helper()
	resp, err := s.client.SyncRaw(context.Background(), table, []byte(data))
	if err != nil {
		t.Fatalf("sync %s: %v", table, err)
	}
	return resp
}

// field returns the raw text of key in r, or "" when absent.
func field(r record.WireRecord, key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return v.Raw
}

func codes(records []record.WireRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = field(r, "code")
	}
	return out
}

// productSet renders n products whose codes share prefix.
func productSet(prefix string, n int) string {
	items := make([]string, n)
	for i := range items {
		code := prefix + string(rune('0'+i))
		items[i] = `{"code":"` + code + `","name":"` + prefix + ` item ` + code + `","category":"` + prefix + `"}`
	}
	return "[" + strings.Join(items, ",") + "]"
}
