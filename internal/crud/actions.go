// Package crud is the in-process collaborator: paginated reads and
// validated writes against the metadata-described tables. Every action
// answers with an envelope, never a Go error, so callers see the same
// shapes an upstream API would send.
package crud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coach-backend/internal/metadata"
	"coach-backend/internal/query"
	"coach-backend/internal/store"
)

type Actions struct {
	store    *store.Store
	registry *metadata.Registry
	now      func() time.Time
}

func NewActions(s *store.Store, reg *metadata.Registry) *Actions {
	return &Actions{store: s, registry: reg, now: time.Now}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func (a *Actions) entity(name string) (*metadata.Entity, map[string]any) {
	e := a.registry.GetEntity(name)
	if e == nil {
		return nil, failure(fmt.Sprintf("Unknown entity: %s", name))
	}
	return e, nil
}

// Fetch returns one page of the entity:
// {items, total, page, limit, totalPages, hasMore, empty, success}.
func (a *Actions) Fetch(ctx context.Context, name string, p query.Params) map[string]any {
	entity, bad := a.entity(name)
	if bad != nil {
		return bad
	}
	plan, err := planList(entity, a.store.Dialect, p)
	if err != nil {
		return failure(err.Error())
	}

	countSQL, countArgs := plan.countSQL(a.store.Dialect)
	total, err := store.Count(ctx, a.store.DB, countSQL, countArgs...)
	if err != nil {
		log.Printf("ERROR: count %s: %v", name, err)
		return failure(fmt.Sprintf("Failed to fetch %s", name))
	}

	selectSQL, selectArgs := plan.selectSQL(a.store.Dialect)
	rows, err := store.QueryRows(ctx, a.store.DB, selectSQL, selectArgs...)
	if err != nil {
		log.Printf("ERROR: list %s: %v", name, err)
		return failure(fmt.Sprintf("Failed to fetch %s", name))
	}
	a.fixBooleans(entity, rows)

	items := make([]any, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	params := query.Params{Page: plan.page, Limit: plan.limit}
	return map[string]any{
		"items":      items,
		"total":      total,
		"page":       plan.page,
		"limit":      plan.limit,
		"totalPages": params.TotalPages(total),
		"hasMore":    params.HasMore(total),
		"empty":      total == 0,
		"success":    true,
	}
}

// FetchByID returns {success, data} or a failure naming the missing record.
func (a *Actions) FetchByID(ctx context.Context, name, id string) map[string]any {
	entity, bad := a.entity(name)
	if bad != nil {
		return bad
	}
	row, err := a.fetchRecord(ctx, a.store.DB, entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure(notFound(entity, id))
		}
		log.Printf("ERROR: get %s/%s: %v", name, id, err)
		return failure(fmt.Sprintf("Failed to fetch %s", name))
	}
	return map[string]any{"success": true, "data": row}
}

func (a *Actions) fetchRecord(ctx context.Context, q store.Querier, entity *metadata.Entity, id string) (map[string]any, error) {
	pb := a.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		columnList(entity), entity.Table, store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id))
	if entity.SoftDelete {
		sqlStr += " AND " + store.QuoteIdent("deletedAt") + " IS NULL"
	}
	row, err := store.QueryRow(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	a.fixBooleans(entity, []map[string]any{row})
	return row, nil
}

func (a *Actions) fixBooleans(entity *metadata.Entity, rows []map[string]any) {
	if a.store.Dialect.IntBooleans() {
		store.NormalizeBooleans(rows, entity.BoolFields())
	}
}

func notFound(entity *metadata.Entity, id string) string {
	return fmt.Sprintf("%s with id %s not found", entity.Name, id)
}
