// Package query runs the filtered, paginated and unpaginated listings of
// each entity and merges computed columns into the rows it returns.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/tables"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 5000
)

// ErrUnknownEntity is returned for an entity that is not in the catalog.
var ErrUnknownEntity = errors.New("unknown entity")

// Reader is the storage used by the Service. Every listing runs inside
// one ReadSnapshot call so its count and rows agree.
type Reader interface {
	ReadSnapshot(ctx context.Context, fn func(store.Reader) error) error
}

// Params are the caller-supplied listing options.
type Params struct {
	Page     int
	PageSize int
	Search   string

	// Filters holds optional equality filters by column. Names that are
	// not filters of the entity are ignored, as are empty values.
	Filters map[string]string
}

// Normalize applies the pagination defaults and bounds.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		if p.PageSize == 0 {
			p.PageSize = DefaultPageSize
		} else {
			p.PageSize = 1
		}
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	PageSize     int   `json:"page_size"`
	TotalRecords int64 `json:"total_records"`
	TotalPages   int64 `json:"total_pages"`
	HasNext      bool  `json:"has_next"`
	HasPrevious  bool  `json:"has_previous"`
}

// NewPagination computes page metadata. Pages past the end are valid and
// simply hold no rows.
func NewPagination(page, size int, total int64) Pagination {
	pages := (total + int64(size) - 1) / int64(size)
	return Pagination{
		CurrentPage:  page,
		PageSize:     size,
		TotalRecords: total,
		TotalPages:   pages,
		HasNext:      int64(page) < pages,
		HasPrevious:  page > 1,
	}
}

// Page is one page of rows.
type Page struct {
	Rows       []record.Row
	Pagination Pagination
}

// Service builds listings over a Reader.
type Service struct {
	reader Reader
}

// NewService returns a Service reading from r.
func NewService(r Reader) *Service {
	return &Service{reader: r}
}

// List returns one page of entity rows.
func (s *Service) List(ctx context.Context, entity string, p Params) (Page, error) {
	t, ok := tables.LookupEntity(entity)
	if !ok {
		return Page{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	p = p.Normalize()
	c := criteria(t, p)

	var page Page
	err := s.reader.ReadSnapshot(ctx, func(r store.Reader) error {
		total, err := r.Count(ctx, t, c)
		if err != nil {
			return err
		}
		page.Pagination = NewPagination(p.Page, p.PageSize, total)

		offset, ok := pageOffset(p.Page, p.PageSize, total)
		if !ok {
			return nil
		}
		page.Rows, err = r.Select(ctx, t, c, p.PageSize, offset)
		return err
	})
	if err != nil {
		return Page{}, err
	}

	page.Rows = computeAll(page.Rows)
	return page, nil
}

// pageOffset returns the row offset of page, or false when the page
// starts past the last row. size must be positive.
func pageOffset(page, size int, total int64) (int, bool) {
	pages := (total + int64(size) - 1) / int64(size)
	if int64(page) > pages {
		return 0, false
	}
	return (page - 1) * size, true
}

// ListAll returns every matching row of entity. Pagination fields of p
// are ignored.
func (s *Service) ListAll(ctx context.Context, entity string, p Params) ([]record.Row, error) {
	t, ok := tables.LookupEntity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	p = p.Normalize()

	var rows []record.Row
	err := s.reader.ReadSnapshot(ctx, func(r store.Reader) error {
		var err error
		rows, err = r.Select(ctx, t, criteria(t, p), 0, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return computeAll(rows), nil
}

// ActiveFilters returns the filters of p that apply to entity.
func ActiveFilters(t *tables.Table, p Params) map[string]string {
	out := make(map[string]string)
	for _, name := range t.Filters {
		if v := strings.TrimSpace(p.Filters[name]); v != "" {
			out[name] = v
		}
	}
	return out
}

func criteria(t *tables.Table, p Params) store.Criteria {
	c := store.Criteria{
		Search:       p.Search,
		SearchFields: t.SearchFields,
	}
	for _, name := range t.Filters {
		if v := strings.TrimSpace(p.Filters[name]); v != "" {
			c.Equals = append(c.Equals, store.Equal{Column: name, Value: v})
		}
	}
	if positive, ok := t.Positive(); ok {
		c.Positive = &positive
	}
	return c
}

func computeAll(rows []record.Row) []record.Row {
	for i := range rows {
		rows[i].Compute()
	}
	return rows
}
