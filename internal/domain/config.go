package domain

import (
	"coach-backend/internal/engine"
	"coach-backend/internal/metadata"
	"coach-backend/internal/query"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

// filterable is the per-entity filter whitelist. Keys are also accepted
// with an operator suffix, e.g. score.gte.
var filterable = map[string][]string{
	"schools": {"district"},
	"staff":   {"schoolId", "role", "active"},
	"visits":  {"schoolId", "coachId", "purpose", "date.gte", "date.lte"},
}

// configFor derives an engine config from a table definition so sorting,
// search and related invalidation are declared once.
func configFor[T, I any](e *metadata.Entity, src Source, full *schema.Schema[T], input *schema.Schema[I], fn transform.Func[T], opts Options) engine.Config[T, I] {
	defaults := query.Params{SortBy: e.DefaultSort, SortOrder: query.Asc}
	if e.DefaultSort == "date" {
		defaults.SortOrder = query.Desc
	}
	return engine.Config[T, I]{
		Entity:          e.Name,
		Remote:          bind[I](src, e.Name),
		FullSchema:      full,
		InputSchema:     input,
		DefaultParams:   defaults,
		SortFields:      e.SortFields,
		FilterFields:    filterable[e.Name],
		SearchFields:    e.SearchFields,
		RelatedEntities: e.Related,
		StaleTime:       opts.StaleTime,
		Transform:       fn,
		PersistFilters:  opts.PersistFilters,
	}
}

func timestamps() []metadata.Field {
	return []metadata.Field{
		{Name: "createdAt", Type: "timestamp", Auto: "create"},
		{Name: "updatedAt", Type: "timestamp", Auto: "update"},
	}
}

func idField() metadata.Field {
	return metadata.Field{Name: "id", Type: "uuid", Required: true}
}

func uuidKey() metadata.PrimaryKey {
	return metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true}
}
