package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/syncer"
)

// testTTL mirrors the default cache lifetimes.
func testTTL(entity string) time.Duration {
	if entity == "master" {
		return 30 * time.Minute
	}
	return 15 * time.Minute
}

type testEnv struct {
	store  *store.SQLStore
	cache  *cache.Coordinator
	router http.Handler
}

// newTestEnv wires a full handler stack over a temp sqlite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "refdata.db"),
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := cache.New(cache.NewMemoryProvider(0))
	sy := syncer.NewService(s, c, syncer.WithSyncLog(s))
	h := NewHandler(s, sy, query.NewService(s), c, testTTL, "test")

	return &testEnv{
		store:  s,
		cache:  c,
		router: NewRouter(h, RouterOptions{RequestTimeout: 10 * time.Second, MaxBodyBytes: 1 << 20}),
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, gjson.Result) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w, gjson.ParseBytes(w.Body.Bytes())
}

// sync posts records to table and fails the test unless it succeeds.
func (e *testEnv) sync(t *testing.T, table, data string) gjson.Result {
	t.Helper()
	w, body := e.do(t, http.MethodPost, "/api/sync", `{"table":"`+table+`","data":`+data+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sync %s: status = %d, body = %s", table, w.Code, w.Body.String())
	}
	return body
}

func codesOf(data gjson.Result) []string {
	var out []string
	data.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.Get("code").String())
		return true
	})
	return out
}
