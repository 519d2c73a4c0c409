package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/syncer"
	"github.com/hyperengineering/refdata/internal/tables"
	"github.com/hyperengineering/refdata/internal/types"
	"github.com/hyperengineering/refdata/internal/validation"
)

// pingTimeout bounds the database check of the home endpoint.
const pingTimeout = 2 * time.Second

// Store is the storage surface used directly by handlers.
type Store interface {
	Ping(ctx context.Context) error
	Dialect() store.Dialect
	CountRows(ctx context.Context, t *tables.Table) (int64, error)
	LastSync(ctx context.Context, table string) (*store.SyncLogEntry, error)
}

// schemaVersioner is implemented by stores that report their migration version.
type schemaVersioner interface {
	SchemaVersion() (int64, error)
}

// Syncer replaces reference tables.
type Syncer interface {
	Replace(ctx context.Context, table string, records []record.WireRecord) (syncer.Result, error)
}

// Lister runs listings.
type Lister interface {
	List(ctx context.Context, entity string, p query.Params) (query.Page, error)
	ListAll(ctx context.Context, entity string, p query.Params) ([]record.Row, error)
}

// Cache is the read cache.
type Cache interface {
	Now() time.Time
	Get(ctx context.Context, key string) ([]byte, bool, time.Time)
	Put(ctx context.Context, key string, value []byte, fresh time.Time, ttl time.Duration)
	InvalidateAll(ctx context.Context)
	Stats(ctx context.Context) cache.Stats
}

// TTLFunc returns the cache lifetime for an entity.
type TTLFunc func(entity string) time.Duration

// Handler implements the API handlers
type Handler struct {
	store   Store
	syncer  Syncer
	query   Lister
	cache   Cache
	ttl     TTLFunc
	version string
}

// NewHandler creates a new Handler.
func NewHandler(s Store, sy Syncer, q Lister, c Cache, ttl TTLFunc, version string) *Handler {
	return &Handler{
		store:   s,
		syncer:  sy,
		query:   q,
		cache:   c,
		ttl:     ttl,
		version: version,
	}
}

// Home handles GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	resp := types.HomeResponse{
		Status:    "ok",
		Database:  "connected",
		Version:   h.version,
		Timestamp: timestamp(time.Now()),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("database ping failed", "component", "api", "error", err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Sync handles POST /api/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		MapError(w, r, err)
		return
	}
	req, err := decodeSyncRequest(body)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("sync request",
		"component", "api",
		"action", "sync",
		"table", req.Table,
		"records", len(req.Data),
	)

	res, err := h.syncer.Replace(r.Context(), req.Table, req.Data)
	if err != nil {
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.SyncResponse{
		Success:          true,
		Message:          "Sync completed successfully",
		Table:            res.Table,
		SyncID:           res.SyncID,
		RecordsProcessed: res.Inserted,
		TableCleared:     true,
		ClearMethod:      res.ClearMethod,
		InsertStrategy:   res.Strategy,
		DurationSeconds:  round(res.Duration.Seconds(), 2),
		RecordsPerSecond: round(res.RecordsPerSecond, 2),
		Timestamp:        timestamp(res.FinishedAt),
	})
}

// decodeSyncRequest parses {table, data}. A missing table defaults to
// rrc_clients; a missing or null data array is an empty payload.
func decodeSyncRequest(body []byte) (types.SyncRequest, error) {
	if !gjson.ValidBytes(body) {
		return types.SyncRequest{}, fmt.Errorf("%w: invalid JSON data", record.ErrMalformedInput)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return types.SyncRequest{}, fmt.Errorf("%w: request body must be a JSON object", record.ErrMalformedInput)
	}

	req := types.SyncRequest{Table: types.DefaultSyncTable}
	if t := doc.Get("table"); t.Exists() && t.Type != gjson.Null {
		if t.Type != gjson.String {
			return types.SyncRequest{}, fmt.Errorf("%w: table must be a string", record.ErrMalformedInput)
		}
		if t.Str != "" {
			req.Table = t.Str
		}
	}

	data := doc.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return req, nil
	}
	if !data.IsArray() {
		return types.SyncRequest{}, fmt.Errorf("%w: data must be an array of records", record.ErrMalformedInput)
	}

	var err error
	data.ForEach(func(_, item gjson.Result) bool {
		var w record.WireRecord
		if uerr := w.UnmarshalJSON([]byte(item.Raw)); uerr != nil {
			err = fmt.Errorf("data[%d]: %w", len(req.Data), uerr)
			return false
		}
		req.Data = append(req.Data, w)
		return true
	})
	if err != nil {
		return types.SyncRequest{}, err
	}
	return req, nil
}

// List handles GET /api/{entity}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	t, ok := h.entity(w, r)
	if !ok {
		return
	}
	p, ok := parseParams(w, r, t)
	if !ok {
		return
	}
	p = p.Normalize()

	ctx := r.Context()
	ttl := h.ttl(t.Entity)
	key := cache.Key(t.Entity, p.Page, p.PageSize, p.Search, query.ActiveFilters(t, p))

	if body, found, fresh := h.cache.Get(ctx, key); found {
		remaining := int((ttl - h.cache.Now().Sub(fresh)) / time.Minute)
		writeListing(w, body, true, fresh, "cache_expires_in_minutes", remaining, start)
		return
	}

	// Taken before the query so a sync committing meanwhile invalidates it.
	fresh := h.cache.Now()
	page, err := h.query.List(ctx, t.Entity, p)
	if err != nil {
		MapError(w, r, err)
		return
	}

	body, err := json.Marshal(types.ListResponse{
		Success:       true,
		Data:          record.EncodeAll(page.Rows),
		Pagination:    page.Pagination,
		RecordsOnPage: len(page.Rows),
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	h.cache.Put(ctx, key, body, fresh, ttl)

	writeListing(w, body, false, fresh, "next_refresh_in_minutes", int(ttl/time.Minute), start)
}

// writeListing adds the per-response fields to a cached or fresh page.
func writeListing(w http.ResponseWriter, body []byte, fromCache bool, fresh time.Time, minutesKey string, minutes int, start time.Time) {
	out := body
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}
	set("from_cache", fromCache)
	set("last_updated", timestamp(fresh))
	set(minutesKey, minutes)
	set("query_duration_seconds", round(time.Since(start).Seconds(), 3))
	if err != nil {
		slog.Error("failed to decorate listing", "component", "api", "error", err)
		out = body
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// ListAll handles GET /api/{entity}/all
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	t, ok := h.entity(w, r)
	if !ok {
		return
	}
	p, ok := parseParams(w, r, t)
	if !ok {
		return
	}
	p = p.Normalize()

	rows, err := h.query.ListAll(r.Context(), t.Entity, p)
	if err != nil {
		MapError(w, r, err)
		return
	}

	resp := types.AllResponse{
		Success:              true,
		Data:                 record.EncodeAll(rows),
		TotalRecords:         len(rows),
		SearchApplied:        p.Search != "",
		QueryDurationSeconds: round(time.Since(start).Seconds(), 3),
		Timestamp:            timestamp(time.Now()),
	}
	if p.Search != "" {
		resp.SearchTerm = &p.Search
	}
	if f := query.ActiveFilters(t, p); len(f) > 0 {
		resp.Filters = f
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshCache handles POST /api/refresh-cache
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	h.cache.InvalidateAll(r.Context())
	slog.Info("cache cleared", "component", "api", "action", "refresh_cache")

	writeJSON(w, http.StatusOK, types.RefreshResponse{
		Success:   true,
		Message:   "Cache cleared successfully - fresh data will be fetched on next request",
		Timestamp: timestamp(time.Now()),
	})
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	all := tables.All()
	statuses := make([]types.TableStatus, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range all {
		i, t := i, t
		g.Go(func() error {
			n, err := h.store.CountRows(gctx, t)
			if err != nil {
				return err
			}
			st := types.TableStatus{Entity: t.Entity, TotalRecords: n}

			last, err := h.store.LastSync(gctx, t.Name)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			default:
				st.LastSync = &types.SyncInfo{
					SyncID:          last.ID,
					Records:         last.Records,
					DurationSeconds: round(last.Duration.Seconds(), 3),
					FinishedAt:      timestamp(last.FinishedAt),
				}
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		MapError(w, r, err)
		return
	}

	resp := types.StatusResponse{
		Success: true,
		Database: types.DatabaseStatus{
			Driver:    h.store.Dialect().Name,
			Connected: true,
		},
		Tables: make(map[string]types.TableStatus, len(all)),
		Cache: types.CacheStatus{
			Stats:      h.cache.Stats(ctx),
			TTLMinutes: make(map[string]int, len(all)),
		},
		Timestamp: timestamp(time.Now()),
	}
	if v, ok := h.store.(schemaVersioner); ok {
		if n, err := v.SchemaVersion(); err == nil {
			resp.Database.MigrationVersion = n
		}
	}
	for i, t := range all {
		resp.Tables[t.Name] = statuses[i]
		resp.Cache.TTLMinutes[t.Entity] = int(h.ttl(t.Entity) / time.Minute)
	}
	resp.QueryDurationSeconds = round(time.Since(start).Seconds(), 3)

	writeJSON(w, http.StatusOK, resp)
}

// NotFound handles unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
}

// MethodNotAllowed handles known routes with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethod, "Method not allowed")
}

// entity resolves the {entity} URL parameter.
func (h *Handler) entity(w http.ResponseWriter, r *http.Request) (*tables.Table, bool) {
	name := chi.URLParam(r, "entity")
	t, ok := tables.LookupEntity(name)
	if !ok {
		MapError(w, r, fmt.Errorf("%w: %q", query.ErrUnknownEntity, name))
		return nil, false
	}
	return t, true
}

// parseParams reads page, page_size, search and the entity's filters.
func parseParams(w http.ResponseWriter, r *http.Request, t *tables.Table) (query.Params, bool) {
	q := r.URL.Query()
	c := validation.NewCollector(0)

	p := query.Params{Search: q.Get("search")}
	p.Page = parseInt(c, q.Get("page"), "page")
	p.PageSize = parseInt(c, q.Get("page_size"), "page_size")
	if c.HasErrors() {
		WriteFieldErrors(w, "Invalid query parameters", c.Errors())
		return query.Params{}, false
	}

	if len(t.Filters) > 0 {
		p.Filters = make(map[string]string, len(t.Filters))
		for _, name := range t.Filters {
			if v := q.Get(name); v != "" {
				p.Filters[name] = v
			}
		}
	}
	return p, true
}

func parseInt(c *validation.Collector, raw, field string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.Add(validation.Invalid(field, "must be an integer, got %q", raw))
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
