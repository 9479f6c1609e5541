// Package query holds list parameters and the pagination state machine
// that drives them.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrUnknownSortField is returned when a sort field is not whitelisted.
var ErrUnknownSortField = errors.New("unknown sort field")

// Params is one list request.
type Params struct {
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	SortBy       string         `json:"sortBy,omitempty"`
	SortOrder    SortOrder      `json:"sortOrder,omitempty"`
	Filters      map[string]any `json:"filters,omitempty"`
	Search       string         `json:"search,omitempty"`
	SearchFields []string       `json:"searchFields,omitempty"`
}

// Skip is the number of records before the current page.
func (p Params) Skip() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// TotalPages is ceil(total/limit).
func (p Params) TotalPages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// HasMore reports whether records remain after the current page.
func (p Params) HasMore(total int) bool {
	return p.Page*p.Limit < total
}

// Clone copies p deeply enough that the copy can be mutated.
func (p Params) Clone() Params {
	out := p
	if p.Filters != nil {
		out.Filters = make(map[string]any, len(p.Filters))
		for k, v := range p.Filters {
			out.Filters[k] = v
		}
	}
	out.SearchFields = slices.Clone(p.SearchFields)
	return out
}

// Merge overlays the non-zero fields of o on p. Filters merge key by key.
func (p Params) Merge(o Params) Params {
	out := p.Clone()
	if o.Page > 0 {
		out.Page = o.Page
	}
	if o.Limit > 0 {
		out.Limit = o.Limit
	}
	if o.SortBy != "" {
		out.SortBy = o.SortBy
	}
	if o.SortOrder != "" {
		out.SortOrder = o.SortOrder
	}
	if len(o.Filters) > 0 {
		if out.Filters == nil {
			out.Filters = make(map[string]any, len(o.Filters))
		}
		for k, v := range o.Filters {
			out.Filters[k] = v
		}
	}
	if o.Search != "" {
		out.Search = o.Search
	}
	if len(o.SearchFields) > 0 {
		out.SearchFields = slices.Clone(o.SearchFields)
	}
	return out
}

// Key is a canonical serialization: equal params give equal keys no matter
// the order filters were set in.
func (p Params) Key() string {
	c := p.Clone()
	if len(c.Filters) == 0 {
		c.Filters = nil
	}
	sort.Strings(c.SearchFields)
	// encoding/json writes map keys sorted.
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%d|%d|%s|%s|%v|%s|%v", c.Page, c.Limit, c.SortBy, c.SortOrder, c.Filters, c.Search, c.SearchFields)
	}
	return string(b)
}

// Options bounds what a list request may ask for.
type Options struct {
	DefaultLimit     int
	MaxLimit         int
	DefaultSortBy    string
	DefaultSortOrder SortOrder
	// SortFields is the sort whitelist. DefaultSortBy is always allowed.
	SortFields []string
	// FilterFields restricts filter keys when non-empty.
	FilterFields []string
	// SearchFields applies when a request searches without naming fields.
	SearchFields []string
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = MaxLimit
	}
	if o.DefaultSortBy == "" {
		o.DefaultSortBy = "createdAt"
	}
	if o.DefaultSortOrder == "" {
		o.DefaultSortOrder = Desc
	}
	return o
}

// AllowsSort reports whether field is on the whitelist.
func (o Options) AllowsSort(field string) bool {
	o = o.withDefaults()
	return field == o.DefaultSortBy || slices.Contains(o.SortFields, field)
}

// Defaults returns the params a fresh list starts from.
func (o Options) Defaults() Params {
	o = o.withDefaults()
	return Params{
		Page:         DefaultPage,
		Limit:        o.DefaultLimit,
		SortBy:       o.DefaultSortBy,
		SortOrder:    o.DefaultSortOrder,
		SearchFields: slices.Clone(o.SearchFields),
	}
}

// Sanitize clamps paging, fills defaults and drops filters that are not
// scalars or not whitelisted. An unknown sort field is an error; the
// returned params carry the default sort in that case.
func Sanitize(p Params, opts Options) (Params, error) {
	opts = opts.withDefaults()
	out := p.Clone()

	if out.Page < 1 {
		out.Page = DefaultPage
	}
	if out.Limit <= 0 {
		out.Limit = opts.DefaultLimit
	}
	if out.Limit > opts.MaxLimit {
		out.Limit = opts.MaxLimit
	}
	if out.SortOrder != Asc && out.SortOrder != Desc {
		out.SortOrder = opts.DefaultSortOrder
	}

	var err error
	switch {
	case out.SortBy == "":
		out.SortBy = opts.DefaultSortBy
	case !opts.AllowsSort(out.SortBy):
		err = fmt.Errorf("%w: %s", ErrUnknownSortField, out.SortBy)
		out.SortBy = opts.DefaultSortBy
	}

	for k, v := range out.Filters {
		if len(opts.FilterFields) > 0 && !slices.Contains(opts.FilterFields, k) {
			delete(out.Filters, k)
			continue
		}
		if v == nil || !IsScalar(v) {
			log.Printf("WARN: dropping non-scalar filter %s=%v", k, v)
			delete(out.Filters, k)
		}
	}
	if len(out.Filters) == 0 {
		out.Filters = nil
	}

	out.Search = strings.TrimSpace(out.Search)
	if len(out.SearchFields) == 0 {
		out.SearchFields = slices.Clone(opts.SearchFields)
	}
	return out, err
}

// IsScalar reports whether v is a string, bool or number.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}
