package crud

import (
	"context"

	"coach-backend/internal/document"
	"coach-backend/internal/engine"
	"coach-backend/internal/query"
)

// Bind exposes one entity of a as an engine collaborator. Inputs are
// flattened to their JSON field names before they reach the table.
func Bind[I any](a *Actions, entity string) engine.Remote[I] {
	return engine.Remote[I]{
		Fetch: func(ctx context.Context, params query.Params) (any, error) {
			return a.Fetch(ctx, entity, params), nil
		},
		FetchByID: func(ctx context.Context, id string) (any, error) {
			return a.FetchByID(ctx, entity, id), nil
		},
		Create: func(ctx context.Context, input I) (any, error) {
			return a.Create(ctx, entity, inputMap(input)), nil
		},
		Update: func(ctx context.Context, id string, patch map[string]any) (any, error) {
			return a.Update(ctx, entity, id, patch), nil
		},
		Delete: func(ctx context.Context, id string) (any, error) {
			return a.Delete(ctx, entity, id), nil
		},
	}
}

func inputMap(input any) map[string]any {
	m, _ := document.Normalize(input).(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}
