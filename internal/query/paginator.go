package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Store persists small blobs by key. Load returns nil data and a nil error
// for a key that was never saved. storage.LocalStorage satisfies it.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Persistence configures where a Paginator saves its params.
type Persistence struct {
	Store Store
	Key   string
}

const persistTimeout = 2 * time.Second

// Paginator is the list state machine. Every transition other than
// SetPage returns to page 1. Safe for concurrent use.
type Paginator struct {
	mu      sync.Mutex
	params  Params
	opts    Options
	persist *Persistence
}

// NewPaginator starts from initial (merged over the option defaults). With
// persistence, previously saved params are rehydrated on top; unreadable
// data is ignored.
func NewPaginator(initial Params, opts Options, persist *Persistence) *Paginator {
	p := &Paginator{opts: opts}
	start := opts.Defaults().Merge(initial)
	if persist != nil && persist.Store != nil && persist.Key != "" {
		p.persist = persist
		if saved, ok := p.load(); ok {
			start = start.Merge(saved)
		}
	}
	clean, err := Sanitize(start, opts)
	if err != nil {
		log.Printf("WARN: paginator: %v", err)
	}
	p.params = clean
	return p
}

// Params returns a copy of the current state.
func (p *Paginator) Params() Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.Clone()
}

func (p *Paginator) SetPage(page int) Params {
	return p.update(func(s *Params) error {
		if page < 1 {
			page = 1
		}
		s.Page = page
		return nil
	}, false)
}

func (p *Paginator) SetLimit(limit int) Params {
	return p.update(func(s *Params) error {
		s.Limit = limit
		return nil
	}, true)
}

// SetSort fails with ErrUnknownSortField and leaves the state untouched
// when field is not whitelisted.
func (p *Paginator) SetSort(field string, order SortOrder) (Params, error) {
	var sortErr error
	out := p.update(func(s *Params) error {
		if !p.opts.AllowsSort(field) {
			sortErr = fmt.Errorf("%w: %s", ErrUnknownSortField, field)
			return sortErr
		}
		s.SortBy = field
		if order != "" {
			s.SortOrder = order
		}
		return nil
	}, true)
	return out, sortErr
}

// SetFilter sets one filter; a nil value removes it.
func (p *Paginator) SetFilter(key string, value any) Params {
	return p.update(func(s *Params) error {
		if value == nil {
			delete(s.Filters, key)
			return nil
		}
		if s.Filters == nil {
			s.Filters = make(map[string]any)
		}
		s.Filters[key] = value
		return nil
	}, true)
}

// ApplyFilters replaces every filter at once.
func (p *Paginator) ApplyFilters(filters map[string]any) Params {
	return p.update(func(s *Params) error {
		s.Filters = make(map[string]any, len(filters))
		for k, v := range filters {
			s.Filters[k] = v
		}
		return nil
	}, true)
}

func (p *Paginator) SetSearch(text string) Params {
	return p.update(func(s *Params) error {
		s.Search = text
		return nil
	}, true)
}

// Reset returns to the defaults.
func (p *Paginator) Reset() Params {
	return p.update(func(s *Params) error {
		*s = p.opts.Defaults()
		return nil
	}, true)
}

func (p *Paginator) update(fn func(*Params) error, resetPage bool) Params {
	p.mu.Lock()
	next := p.params.Clone()
	if err := fn(&next); err != nil {
		out := p.params.Clone()
		p.mu.Unlock()
		return out
	}
	if resetPage {
		next.Page = 1
	}
	clean, _ := Sanitize(next, p.opts)
	p.params = clean
	out := clean.Clone()
	p.mu.Unlock()

	p.save(out)
	return out
}

// persisted is what survives a restart; search text is session-only.
type persisted struct {
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
	SortBy    string         `json:"sortBy,omitempty"`
	SortOrder SortOrder      `json:"sortOrder,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
}

func (p *Paginator) save(params Params) {
	if p.persist == nil {
		return
	}
	b, err := json.Marshal(persisted{
		Page:      params.Page,
		Limit:     params.Limit,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
		Filters:   params.Filters,
	})
	if err != nil {
		log.Printf("WARN: paginator encode %s: %v", p.persist.Key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.persist.Store.Save(ctx, p.persist.Key, b); err != nil {
		log.Printf("WARN: paginator save %s: %v", p.persist.Key, err)
	}
}

func (p *Paginator) load() (Params, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	b, err := p.persist.Store.Load(ctx, p.persist.Key)
	if err != nil {
		log.Printf("WARN: paginator load %s: %v", p.persist.Key, err)
		return Params{}, false
	}
	if b == nil {
		return Params{}, false
	}
	var saved persisted
	if err := json.Unmarshal(b, &saved); err != nil {
		log.Printf("WARN: paginator discarding corrupt state %s: %v", p.persist.Key, err)
		return Params{}, false
	}
	if saved.SortBy != "" && !p.opts.AllowsSort(saved.SortBy) {
		saved.SortBy = ""
		saved.SortOrder = ""
	}
	return Params{
		Page:      saved.Page,
		Limit:     saved.Limit,
		SortBy:    saved.SortBy,
		SortOrder: saved.SortOrder,
		Filters:   saved.Filters,
	}, true
}
