// Package refdata is a Go client for the reference data service.
package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/types"
	"github.com/hyperengineering/refdata/internal/validation"
)

// Response and record types shared with the server.
type (
	Record          = record.WireRecord
	SyncResponse    = types.SyncResponse
	ListResponse    = types.ListResponse
	AllResponse     = types.AllResponse
	RefreshResponse = types.RefreshResponse
	HomeResponse    = types.HomeResponse
	StatusResponse  = types.StatusResponse
	FieldError      = validation.ValidationError
)

// DefaultTimeout is the HTTP timeout of a Client built without
// WithHTTPClient. Large syncs may need more.
const DefaultTimeout = 5 * time.Minute

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Errors     []FieldError
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "refdata: %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	for _, fe := range e.Errors {
		b.WriteString("; " + fe.Error())
	}
	return b.String()
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client talks to one service instance.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a client for the service at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListOptions select a listing page.
type ListOptions struct {
	Page     int
	PageSize int
	Search   string
	// Filters are entity-specific equality filters, e.g. category for products.
	Filters map[string]string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize != 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	for name, value := range o.Filters {
		v.Set(name, value)
	}
	return v
}

// Home checks that the service and its database are up.
func (c *Client) Home(ctx context.Context) (*HomeResponse, error) {
	var out HomeResponse
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync replaces table with records.
func (c *Client) Sync(ctx context.Context, table string, records []Record) (*SyncResponse, error) {
	body, err := json.Marshal(types.SyncRequest{Table: table, Data: records})
	if err != nil {
		return nil, fmt.Errorf("marshal sync request: %w", err)
	}
	return c.sync(ctx, body)
}

// SyncRaw replaces table with data, a JSON array of record objects,
// without decoding it client-side.
func (c *Client) SyncRaw(ctx context.Context, table string, data []byte) (*SyncResponse, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "table", table)
	if err == nil {
		body, err = sjson.SetRawBytes(body, "data", data)
	}
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	return c.sync(ctx, body)
}

func (c *Client) sync(ctx context.Context, body []byte) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of entity (clients, master or products).
func (c *Client) List(ctx context.Context, entity string, opts ListOptions) (*ListResponse, error) {
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, listPath(entity, "", opts), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAll returns every matching row of entity.
func (c *Client) ListAll(ctx context.Context, entity string, opts ListOptions) (*AllResponse, error) {
	var out AllResponse
	if err := c.do(ctx, http.MethodGet, listPath(entity, "/all", opts), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshCache drops every cached listing.
func (c *Client) RefreshCache(ctx context.Context) (*RefreshResponse, error) {
	var out RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/refresh-cache", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns per-table counts, last syncs and cache statistics.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func listPath(entity, suffix string, opts ListOptions) string {
	p := "/api/" + url.PathEscape(entity) + suffix
	if q := opts.values().Encode(); q != "" {
		p += "?" + q
	}
	return p
}

// do sends a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env types.ErrorResponse
		if json.Unmarshal(data, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Error
			apiErr.Errors = env.Errors
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
