package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"coach-backend/internal/cache"
	"coach-backend/internal/query"
	"coach-backend/internal/response"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

// Remote is the collaborator boundary for one entity type. Every function
// returns the raw payload; shape handling happens in the engine.
type Remote[I any] struct {
	Fetch     func(ctx context.Context, params query.Params) (any, error)
	FetchByID func(ctx context.Context, id string) (any, error)
	Create    func(ctx context.Context, input I) (any, error)
	Update    func(ctx context.Context, id string, patch map[string]any) (any, error)
	Delete    func(ctx context.Context, id string) (any, error)
}

// Config describes one entity type. T is the full record, I the input
// accepted by create and update.
type Config[T, I any] struct {
	Entity      string
	Remote      Remote[I]
	FullSchema  *schema.Schema[T]
	InputSchema *schema.Schema[I]

	DefaultParams query.Params
	SortFields    []string
	FilterFields  []string
	SearchFields  []string
	MaxLimit      int

	// RelatedEntities have their cached lists invalidated after every
	// successful mutation of this entity.
	RelatedEntities []string

	StaleTime time.Duration
	Transform transform.Func[T]

	// PersistFilters saves list params (minus search) under StorageKey.
	PersistFilters bool
	StorageKey     string
}

// Deps are the shared resources handed to every entity.
type Deps struct {
	Cache      *cache.Cache
	Storage    query.Store
	Normalizer *response.Normalizer
}

func (c Config[T, I]) validate(deps Deps) error {
	if c.Entity == "" {
		return ConfigurationError("entity name is required")
	}
	if c.FullSchema == nil || c.InputSchema == nil {
		return ConfigurationError("%s: full and input schemas are required", c.Entity)
	}
	r := c.Remote
	if r.Fetch == nil || r.FetchByID == nil || r.Create == nil || r.Update == nil || r.Delete == nil {
		return ConfigurationError("%s: all five remote functions are required", c.Entity)
	}
	if deps.Cache == nil {
		return ConfigurationError("%s: a cache is required", c.Entity)
	}
	if c.PersistFilters && deps.Storage == nil {
		return ConfigurationError("%s: filter persistence needs a storage backend", c.Entity)
	}
	for _, rel := range c.RelatedEntities {
		if rel == c.Entity {
			return ConfigurationError("%s: an entity cannot be related to itself", c.Entity)
		}
	}
	if sortBy := c.DefaultParams.SortBy; sortBy != "" && len(c.SortFields) > 0 && !slices.Contains(c.SortFields, sortBy) {
		return ConfigurationError("%s: default sort field %q is not sortable", c.Entity, c.DefaultParams.SortBy)
	}
	return nil
}

func (c Config[T, I]) options() query.Options {
	opts := query.Options{
		MaxLimit:     c.MaxLimit,
		SortFields:   c.SortFields,
		FilterFields: c.FilterFields,
		SearchFields: c.SearchFields,
	}
	if c.DefaultParams.Limit > 0 {
		opts.DefaultLimit = c.DefaultParams.Limit
	}
	if c.DefaultParams.SortBy != "" {
		opts.DefaultSortBy = c.DefaultParams.SortBy
	}
	if c.DefaultParams.SortOrder != "" {
		opts.DefaultSortOrder = c.DefaultParams.SortOrder
	}
	return opts
}

func (c Config[T, I]) storageKey() string {
	if c.StorageKey != "" {
		return c.StorageKey
	}
	return fmt.Sprintf("%s_filters", c.Entity)
}
