package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"coach-backend/internal/document"
	"coach-backend/internal/query"
	"coach-backend/internal/schema"
	"coach-backend/internal/selector"
)

// Service is an entity's hooks with the type parameters erased, for
// transports that dispatch on the entity name.
type Service interface {
	Entity() string
	QueryOptions() query.Options
	ListAny(ctx context.Context, params query.Params) ListResult[any]
	ByIDAny(ctx context.Context, id string) DetailResult[any]
	CreateAny(ctx context.Context, input map[string]any) MutationResult[any]
	UpdateAny(ctx context.Context, id string, patch map[string]any) MutationResult[any]
	DeleteAny(ctx context.Context, id string) MutationResult[any]
	Options(ctx context.Context, search string, limit int) ([]selector.Option, *AppError)
	Invalidate() int
}

type service[T, I any] struct {
	h *Hooks[T, I]
	m *Mutations[T, I]
}

// Service returns the type-erased view of h.
func (h *Hooks[T, I]) Service() Service {
	return &service[T, I]{h: h, m: h.Mutations()}
}

func (s *service[T, I]) Entity() string              { return s.h.Entity() }
func (s *service[T, I]) QueryOptions() query.Options { return s.h.QueryOptions() }
func (s *service[T, I]) Invalidate() int             { return s.h.Invalidate() }

func (s *service[T, I]) ListAny(ctx context.Context, params query.Params) ListResult[any] {
	res := s.h.List(ctx, params)
	items := make([]any, len(res.Items))
	for i, item := range res.Items {
		items[i] = item
	}
	return ListResult[any]{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
		HasMore:    res.HasMore,
		IsLoading:  res.IsLoading,
		IsStale:    res.IsStale,
		Message:    res.Message,
		Error:      res.Error,
		Params:     res.Params,
	}
}

func (s *service[T, I]) ByIDAny(ctx context.Context, id string) DetailResult[any] {
	return eraseDetail(s.h.ByID(ctx, id))
}

func (s *service[T, I]) CreateAny(ctx context.Context, input map[string]any) MutationResult[any] {
	v, err := schema.ValidateStrict(s.h.cfg.InputSchema, input)
	if err != nil {
		return failed[any](AsAppError(err))
	}
	return eraseMutation(s.m.create(ctx, v))
}

func (s *service[T, I]) UpdateAny(ctx context.Context, id string, patch map[string]any) MutationResult[any] {
	return eraseMutation(s.m.Update(ctx, id, patch))
}

func (s *service[T, I]) DeleteAny(ctx context.Context, id string) MutationResult[any] {
	return eraseMutation(s.m.Delete(ctx, id))
}

// Options builds a reference pick-list. With search fields configured the
// collaborator searches; otherwise the page is filtered here.
func (s *service[T, I]) Options(ctx context.Context, search string, limit int) ([]selector.Option, *AppError) {
	search = strings.TrimSpace(search)
	params := query.Params{Page: 1, Limit: limit}
	if params.Limit <= 0 {
		params.Limit = s.h.opts.MaxLimit
		if params.Limit <= 0 {
			params.Limit = query.MaxLimit
		}
	}
	serverSearch := len(s.h.cfg.SearchFields) > 0
	if serverSearch {
		params.Search = search
	}
	res := s.h.List(ctx, params)
	if res.Error != nil {
		return nil, res.Error
	}

	records := make([]map[string]any, 0, len(res.Items))
	for _, item := range res.Items {
		if m, ok := document.Normalize(item).(map[string]any); ok {
			records = append(records, m)
		}
	}
	if !serverSearch {
		records = selector.Filter(records, search)
	}
	return selector.Options(records), nil
}

func eraseDetail[T any](r DetailResult[T]) DetailResult[any] {
	out := DetailResult[any]{Found: r.Found, Disabled: r.Disabled, IsStale: r.IsStale, Error: r.Error}
	if r.Data != nil {
		var v any = *r.Data
		out.Data = &v
	}
	return out
}

func eraseMutation[T any](r MutationResult[T]) MutationResult[any] {
	out := MutationResult[any]{Success: r.Success, Error: r.Error}
	if r.Data != nil {
		var v any = *r.Data
		out.Data = &v
	}
	return out
}

// Services looks up entity services by name.
type Services struct {
	mu     sync.RWMutex
	byName map[string]Service
}

func NewServices(svcs ...Service) *Services {
	s := &Services{byName: make(map[string]Service, len(svcs))}
	for _, svc := range svcs {
		s.Register(svc)
	}
	return s
}

func (s *Services) Register(svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[svc.Entity()] = svc
}

// Get returns the service for name or an UNKNOWN_ENTITY error.
func (s *Services) Get(name string) (Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byName[name]
	if !ok {
		return nil, UnknownEntityError(name)
	}
	return svc, nil
}

// Names returns the registered entity names in order.
func (s *Services) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
