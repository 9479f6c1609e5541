package engine

import (
	"context"
	"log"
	"slices"
	"strings"

	"coach-backend/internal/cache"
	"coach-backend/internal/instrument"
	"coach-backend/internal/query"
	"coach-backend/internal/response"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

// Hooks is the generic data-access surface for one entity type.
type Hooks[T, I any] struct {
	cfg     Config[T, I]
	opts    query.Options
	cache   *cache.Cache
	storage query.Store
	norm    *response.Normalizer
}

// ListResult is the state a list view renders. Error is the only place
// callers need to check for failures.
type ListResult[T any] struct {
	Items      []T          `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
	HasMore    bool         `json:"hasMore"`
	IsLoading  bool         `json:"isLoading"`
	IsStale    bool         `json:"isStale"`
	Message    string       `json:"message,omitempty"`
	Error      *AppError    `json:"error,omitempty"`
	Params     query.Params `json:"params"`
}

// DetailResult is the state of one record view. Disabled means no id was
// given and nothing was fetched.
type DetailResult[T any] struct {
	Data     *T        `json:"data"`
	Found    bool      `json:"found"`
	Disabled bool      `json:"disabled"`
	IsStale  bool      `json:"isStale"`
	Error    *AppError `json:"error,omitempty"`
}

// listPage is what the cache holds for one list key.
type listPage[T any] struct {
	items   []T
	total   int
	message string
}

// New validates cfg once and builds the hooks for one entity.
func New[T, I any](cfg Config[T, I], deps Deps) (*Hooks[T, I], error) {
	if err := cfg.validate(deps); err != nil {
		return nil, err
	}
	cfg.SortFields = slices.Clone(cfg.SortFields)
	cfg.FilterFields = slices.Clone(cfg.FilterFields)
	cfg.SearchFields = slices.Clone(cfg.SearchFields)
	cfg.RelatedEntities = slices.Clone(cfg.RelatedEntities)
	cfg.DefaultParams = cfg.DefaultParams.Clone()

	norm := deps.Normalizer
	if norm == nil {
		norm = response.New(nil)
	}
	return &Hooks[T, I]{
		cfg:     cfg,
		opts:    cfg.options(),
		cache:   deps.Cache,
		storage: deps.Storage,
		norm:    norm,
	}, nil
}

// Entity returns the entity type name.
func (h *Hooks[T, I]) Entity() string { return h.cfg.Entity }

// QueryOptions returns the paging bounds and whitelists of the entity.
func (h *Hooks[T, I]) QueryOptions() query.Options { return h.opts }

// DefaultParams returns the params a fresh list starts from.
func (h *Hooks[T, I]) DefaultParams() query.Params {
	return h.opts.Defaults().Merge(h.cfg.DefaultParams)
}

// List returns one page. Cached pages are served immediately; stale ones
// are refreshed in the background.
func (h *Hooks[T, I]) List(ctx context.Context, params query.Params) ListResult[T] {
	clean, appErr := h.sanitize(params)
	if appErr != nil {
		return h.listFailure(clean, appErr)
	}
	key := h.listKey(clean)
	res, err := h.cache.Fetch(ctx, key, h.cfg.StaleTime, h.listFetcher(clean))
	return h.listResult(key, clean, res, err)
}

func (h *Hooks[T, I]) refreshList(ctx context.Context, params query.Params) ListResult[T] {
	clean, appErr := h.sanitize(params)
	if appErr != nil {
		return h.listFailure(clean, appErr)
	}
	key := h.listKey(clean)
	res, err := h.cache.Refetch(ctx, key, h.cfg.StaleTime, h.listFetcher(clean))
	return h.listResult(key, clean, res, err)
}

func (h *Hooks[T, I]) sanitize(params query.Params) (query.Params, *AppError) {
	clean, err := query.Sanitize(h.DefaultParams().Merge(params), h.opts)
	if err != nil {
		return clean, ConfigurationError("%s: %v", h.cfg.Entity, err)
	}
	return clean, nil
}

func (h *Hooks[T, I]) listKey(params query.Params) cache.Key {
	return cache.ListKey(h.cfg.Entity, params.Key())
}

func (h *Hooks[T, I]) listFailure(params query.Params, appErr *AppError) ListResult[T] {
	return ListResult[T]{
		Items:   []T{},
		Page:    params.Page,
		Limit:   params.Limit,
		Message: appErr.Message,
		Error:   appErr,
		Params:  params,
	}
}

func (h *Hooks[T, I]) listResult(key cache.Key, params query.Params, res cache.Result, err error) ListResult[T] {
	if err != nil {
		return h.listFailure(params, AsAppError(err))
	}
	page, _ := res.Value.(listPage[T])
	items := page.items
	if items == nil {
		items = []T{}
	}
	out := ListResult[T]{
		Items:      items,
		Total:      page.total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: params.TotalPages(page.total),
		HasMore:    params.HasMore(page.total),
		IsStale:    res.Stale,
		Message:    page.message,
		Params:     params,
	}
	if res.Stale {
		out.IsLoading = h.cache.Peek(key).Fetching
	}
	return out
}

func (h *Hooks[T, I]) listFetcher(params query.Params) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		ctx, span := instrument.Start(ctx, "engine.list")
		defer span.End()
		span.Entity(h.cfg.Entity, "")

		raw, err := h.cfg.Remote.Fetch(ctx, params)
		if err != nil {
			span.Fail(err)
			return nil, AsAppError(err)
		}
		coll := h.norm.ToCollection(raw)
		if !coll.Success {
			err := EnvelopeError(coll.Message)
			span.Fail(err)
			return nil, err
		}

		rawItems, total := coll.Items, coll.Total
		// An unpaginated collaborator hands back everything; keep the page.
		if total == len(rawItems) && len(rawItems) > params.Limit {
			rawItems = window(rawItems, params.Skip(), params.Limit)
		}

		items := schema.ValidateArraySafe(h.cfg.FullSchema, rawItems)
		if dropped := len(rawItems) - len(items); dropped > 0 {
			log.Printf("WARN: %s list: dropped %d invalid records", h.cfg.Entity, dropped)
			span.Set("dropped", dropped)
		}
		items = transform.Apply(items, h.cfg.Transform)

		span.Set("count", len(items))
		return listPage[T]{items: items, total: total, message: coll.Message}, nil
	}
}

func window(items []any, skip, limit int) []any {
	if skip >= len(items) {
		return []any{}
	}
	end := min(skip+limit, len(items))
	return items[skip:end]
}

// ByID returns one record. An empty id disables the lookup: nothing is
// fetched and Disabled is set.
func (h *Hooks[T, I]) ByID(ctx context.Context, id string) DetailResult[T] {
	id = strings.TrimSpace(id)
	if id == "" {
		return DetailResult[T]{Disabled: true}
	}
	res, err := h.cache.Fetch(ctx, cache.DetailKey(h.cfg.Entity, id), h.cfg.StaleTime, h.detailFetcher(id))
	if err != nil {
		return DetailResult[T]{Error: AsAppError(err)}
	}
	v, ok := res.Value.(T)
	if !ok {
		return DetailResult[T]{Error: NotFoundError(h.cfg.Entity, id)}
	}
	return DetailResult[T]{Data: &v, Found: true, IsStale: res.Stale}
}

func (h *Hooks[T, I]) detailFetcher(id string) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		ctx, span := instrument.Start(ctx, "engine.detail")
		defer span.End()
		span.Entity(h.cfg.Entity, id)

		raw, err := h.cfg.Remote.FetchByID(ctx, id)
		if err != nil {
			span.Fail(err)
			return nil, AsAppError(err)
		}
		ent := h.norm.ToEntity(raw)
		if !ent.Success {
			var err *AppError
			if isNotFound(ent.Error) {
				err = NotFoundError(h.cfg.Entity, id)
			} else {
				err = EnvelopeError(ent.Error)
			}
			span.Fail(err)
			return nil, err
		}
		v, err := schema.ValidateStrict(h.cfg.FullSchema, ent.Data)
		if err != nil {
			span.Fail(err)
			return nil, AsAppError(err)
		}
		return transform.One(v, h.cfg.Transform), nil
	}
}

func isNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "not found")
}

// Invalidate marks every cached list of the entity stale. Exposed for
// collaborators that change data outside the mutation path.
func (h *Hooks[T, I]) Invalidate() int {
	return h.cache.Invalidate(cache.Lists(h.cfg.Entity))
}
