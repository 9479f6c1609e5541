package engine

import (
	"context"
	"sync"

	"coach-backend/internal/query"
)

// Manager ties one list to its paginator and mutations for a single
// consumer. Every paginator transition reloads the list; a load that was
// superseded by a newer one never replaces the state.
type Manager[T, I any] struct {
	hooks     *Hooks[T, I]
	mutations *Mutations[T, I]
	paginator *query.Paginator

	mu    sync.Mutex
	gen   uint64
	state ListResult[T]
}

// Manager starts from the entity defaults merged with initial. With
// PersistFilters set, saved params are restored on top.
func (h *Hooks[T, I]) Manager(initial query.Params) *Manager[T, I] {
	var persist *query.Persistence
	if h.cfg.PersistFilters {
		persist = &query.Persistence{Store: h.storage, Key: h.cfg.storageKey()}
	}
	p := query.NewPaginator(h.cfg.DefaultParams.Merge(initial), h.opts, persist)
	return &Manager[T, I]{
		hooks:     h,
		mutations: h.Mutations(),
		paginator: p,
		state:     ListResult[T]{Items: []T{}, Params: p.Params(), IsLoading: true},
	}
}

// State returns the last applied list state.
func (m *Manager[T, I]) State() ListResult[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Params returns the current list params.
func (m *Manager[T, I]) Params() query.Params {
	return m.paginator.Params()
}

// Load reads the current page through the cache.
func (m *Manager[T, I]) Load(ctx context.Context) ListResult[T] {
	return m.run(ctx, false)
}

// Refresh bypasses freshness and waits for a new copy of the current page.
func (m *Manager[T, I]) Refresh(ctx context.Context) ListResult[T] {
	return m.run(ctx, true)
}

func (m *Manager[T, I]) run(ctx context.Context, refresh bool) ListResult[T] {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	params := m.paginator.Params()
	var res ListResult[T]
	if refresh {
		res = m.hooks.refreshList(ctx, params)
	} else {
		res = m.hooks.List(ctx, params)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.state = res
	}
	return res
}

func (m *Manager[T, I]) SetPage(ctx context.Context, page int) ListResult[T] {
	m.paginator.SetPage(page)
	return m.Load(ctx)
}

func (m *Manager[T, I]) SetLimit(ctx context.Context, limit int) ListResult[T] {
	m.paginator.SetLimit(limit)
	return m.Load(ctx)
}

// SetSort rejects fields outside the sort whitelist and leaves the list
// untouched in that case.
func (m *Manager[T, I]) SetSort(ctx context.Context, field string, order query.SortOrder) ListResult[T] {
	if _, err := m.paginator.SetSort(field, order); err != nil {
		res := m.State()
		res.Error = ConfigurationError("%s: %v", m.hooks.cfg.Entity, err)
		return res
	}
	return m.Load(ctx)
}

func (m *Manager[T, I]) SetFilter(ctx context.Context, key string, value any) ListResult[T] {
	m.paginator.SetFilter(key, value)
	return m.Load(ctx)
}

func (m *Manager[T, I]) ApplyFilters(ctx context.Context, filters map[string]any) ListResult[T] {
	m.paginator.ApplyFilters(filters)
	return m.Load(ctx)
}

func (m *Manager[T, I]) SetSearch(ctx context.Context, text string) ListResult[T] {
	m.paginator.SetSearch(text)
	return m.Load(ctx)
}

func (m *Manager[T, I]) Reset(ctx context.Context) ListResult[T] {
	m.paginator.Reset()
	return m.Load(ctx)
}

// Create, Update and Delete refresh the managed list after a successful
// write so the consumer sees the change without waiting on the background
// refetch.
func (m *Manager[T, I]) Create(ctx context.Context, input I) MutationResult[T] {
	res := m.mutations.Create(ctx, input)
	if res.Success {
		m.Refresh(ctx)
	}
	return res
}

func (m *Manager[T, I]) Update(ctx context.Context, id string, patch map[string]any) MutationResult[T] {
	res := m.mutations.Update(ctx, id, patch)
	if res.Success {
		m.Refresh(ctx)
	}
	return res
}

func (m *Manager[T, I]) Delete(ctx context.Context, id string) MutationResult[T] {
	res := m.mutations.Delete(ctx, id)
	if res.Success {
		m.Refresh(ctx)
	}
	return res
}

// ByID reads one record through the shared cache.
func (m *Manager[T, I]) ByID(ctx context.Context, id string) DetailResult[T] {
	return m.hooks.ByID(ctx, id)
}
