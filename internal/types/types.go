// Package types holds the request and response bodies of the HTTP API.
package types

import (
	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/validation"
)

// DefaultSyncTable is used when a sync request names no table.
const DefaultSyncTable = "rrc_clients"

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Table string              `json:"table"`
	Data  []record.WireRecord `json:"data"`
}

// SyncResponse reports a committed sync.
type SyncResponse struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	Table            string  `json:"table"`
	SyncID           string  `json:"sync_id"`
	RecordsProcessed int     `json:"records_processed"`
	TableCleared     bool    `json:"table_cleared"`
	ClearMethod      string  `json:"clear_method"`
	InsertStrategy   string  `json:"insert_strategy"`
	DurationSeconds  float64 `json:"duration_seconds"`
	RecordsPerSecond float64 `json:"records_per_second"`
	Timestamp        string  `json:"timestamp"`
}

// ListResponse is one page of a listing.
//
// The cached form carries only the first four fields; the rest describe
// the request that served it and are set per response.
type ListResponse struct {
	Success               bool                `json:"success"`
	Data                  []record.WireRecord `json:"data"`
	Pagination            query.Pagination    `json:"pagination"`
	RecordsOnPage         int                 `json:"records_on_page"`
	FromCache             bool                `json:"from_cache"`
	LastUpdated           string              `json:"last_updated,omitempty"`
	CacheExpiresInMinutes *int                `json:"cache_expires_in_minutes,omitempty"`
	NextRefreshInMinutes  *int                `json:"next_refresh_in_minutes,omitempty"`
	QueryDurationSeconds  float64             `json:"query_duration_seconds"`
}

// AllResponse is an unpaginated listing.
type AllResponse struct {
	Success              bool                `json:"success"`
	Data                 []record.WireRecord `json:"data"`
	TotalRecords         int                 `json:"total_records"`
	SearchApplied        bool                `json:"search_applied"`
	SearchTerm           *string             `json:"search_term"`
	Filters              map[string]string   `json:"filters,omitempty"`
	QueryDurationSeconds float64             `json:"query_duration_seconds"`
	Timestamp            string              `json:"timestamp"`
}

// RefreshResponse acknowledges a cache flush.
type RefreshResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HomeResponse is the liveness payload.
type HomeResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the diagnostics payload of GET /api/status.
type StatusResponse struct {
	Success              bool                   `json:"success"`
	Database             DatabaseStatus         `json:"database"`
	Tables               map[string]TableStatus `json:"tables"`
	Cache                CacheStatus            `json:"cache"`
	QueryDurationSeconds float64                `json:"query_duration_seconds"`
	Timestamp            string                 `json:"timestamp"`
}

// DatabaseStatus describes the storage backend.
type DatabaseStatus struct {
	Driver           string `json:"driver"`
	Connected        bool   `json:"connected"`
	MigrationVersion int64  `json:"migration_version,omitempty"`
}

// TableStatus describes one reference table.
type TableStatus struct {
	Entity       string    `json:"entity"`
	TotalRecords int64     `json:"total_records"`
	LastSync     *SyncInfo `json:"last_sync"`
}

// SyncInfo is the most recent successful sync of a table.
type SyncInfo struct {
	SyncID          string  `json:"sync_id"`
	Records         int     `json:"records"`
	DurationSeconds float64 `json:"duration_seconds"`
	FinishedAt      string  `json:"finished_at"`
}

// CacheStatus describes the read cache.
type CacheStatus struct {
	cache.Stats
	TTLMinutes map[string]int `json:"ttl_minutes"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool                         `json:"success"`
	Error   string                       `json:"error"`
	Code    string                       `json:"code"`
	Errors  []validation.ValidationError `json:"errors,omitempty"`
}
