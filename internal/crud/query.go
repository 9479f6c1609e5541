package crud

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"coach-backend/internal/metadata"
	"coach-backend/internal/query"
	"coach-backend/internal/store"
)

// listPlan is one sanitized list request against an entity table.
type listPlan struct {
	entity  *metadata.Entity
	filters []whereClause
	search  string
	fields  []string
	sortBy  string
	order   string
	page    int
	limit   int
}

type whereClause struct {
	Field    string
	Operator string
	Value    any
}

// planList maps list params onto the entity. Unknown sort fields fall back
// to the entity default, unknown filter keys are ignored and search only
// looks at declared search fields.
func planList(entity *metadata.Entity, dialect store.Dialect, p query.Params) (*listPlan, error) {
	plan := &listPlan{
		entity: entity,
		page:   max(p.Page, 1),
		limit:  p.Limit,
		search: strings.TrimSpace(p.Search),
		sortBy: defaultSort(entity),
		order:  "DESC",
	}
	if plan.limit <= 0 {
		plan.limit = query.DefaultLimit
	}
	if plan.limit > query.MaxLimit {
		plan.limit = query.MaxLimit
	}
	if p.SortBy != "" && allowsSort(entity, p.SortBy) {
		plan.sortBy = p.SortBy
	}
	if p.SortOrder == query.Asc {
		plan.order = "ASC"
	}

	for key, val := range p.Filters {
		field, op := parseFilterKey(key)
		f := entity.GetField(field)
		if f == nil {
			continue
		}
		coerced, err := coerceValue(f, val)
		if err != nil {
			return nil, fmt.Errorf("invalid filter value for %s: %w", field, err)
		}
		if b, ok := coerced.(bool); ok && dialect.IntBooleans() {
			coerced = boolInt(b)
		}
		plan.filters = append(plan.filters, whereClause{Field: field, Operator: op, Value: coerced})
	}
	// Map iteration order is random; keep the SQL stable.
	slices.SortFunc(plan.filters, func(a, b whereClause) int { return strings.Compare(a.Field+a.Operator, b.Field+b.Operator) })

	for _, name := range p.SearchFields {
		if slices.Contains(entity.SearchFields, name) {
			plan.fields = append(plan.fields, name)
		}
	}
	if len(plan.fields) == 0 {
		plan.fields = entity.SearchFields
	}
	return plan, nil
}

func defaultSort(entity *metadata.Entity) string {
	switch {
	case entity.DefaultSort != "":
		return entity.DefaultSort
	case entity.HasField("createdAt"):
		return "createdAt"
	default:
		return entity.PrimaryKey.Field
	}
}

func allowsSort(entity *metadata.Entity, field string) bool {
	if len(entity.SortFields) > 0 {
		return slices.Contains(entity.SortFields, field) || field == entity.DefaultSort
	}
	return entity.HasField(field)
}

// where builds the shared WHERE clause of the select and count queries.
func (p *listPlan) where(dialect store.Dialect, pb store.ParamBuilder) string {
	var conds []string
	if p.entity.SoftDelete {
		conds = append(conds, store.QuoteIdent("deletedAt")+" IS NULL")
	}
	for _, f := range p.filters {
		conds = append(conds, buildWhereClause(f, pb))
	}
	if p.search != "" && len(p.fields) > 0 {
		var ors []string
		for _, name := range p.fields {
			ors = append(ors, dialect.LikeExpr(store.QuoteIdent(name), pb, p.search))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (p *listPlan) selectSQL(dialect store.Dialect) (string, []any) {
	pb := dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s", columnList(p.entity), p.entity.Table)
	sqlStr += p.where(dialect, pb)
	sqlStr += fmt.Sprintf(" ORDER BY %s %s", store.QuoteIdent(p.sortBy), p.order)
	if p.sortBy != p.entity.PrimaryKey.Field {
		sqlStr += fmt.Sprintf(", %s %s", store.QuoteIdent(p.entity.PrimaryKey.Field), p.order)
	}
	limit := pb.Add(p.limit)
	offset := pb.Add((p.page - 1) * p.limit)
	sqlStr += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	return sqlStr, pb.Params()
}

func (p *listPlan) countSQL(dialect store.Dialect) (string, []any) {
	pb := dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s", p.entity.Table) + p.where(dialect, pb)
	return sqlStr, pb.Params()
}

func columnList(entity *metadata.Entity) string {
	cols := make([]string, len(entity.Fields))
	for i, name := range entity.FieldNames() {
		cols[i] = store.QuoteIdent(name)
	}
	return strings.Join(cols, ", ")
}

func buildWhereClause(f whereClause, pb store.ParamBuilder) string {
	col := store.QuoteIdent(f.Field)
	switch f.Operator {
	case "neq":
		return fmt.Sprintf("%s != %s", col, pb.Add(f.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", col, pb.Add(f.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", col, pb.Add(f.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", col, pb.Add(f.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", col, pb.Add(f.Value))
	default:
		return fmt.Sprintf("%s = %s", col, pb.Add(f.Value))
	}
}

// parseFilterKey splits "score.gte" into ("score", "gte") and "city" into ("city", "eq").
func parseFilterKey(key string) (string, string) {
	field, op, ok := strings.Cut(key, ".")
	if !ok {
		return key, "eq"
	}
	return field, op
}

// coerceValue converts query-string filter values to the column type.
// Values that are already typed pass through.
func coerceValue(field *metadata.Field, val any) (any, error) {
	s, ok := val.(string)
	if !ok {
		return val, nil
	}
	switch field.Type {
	case "int", "integer":
		return strconv.Atoi(s)
	case "bigint":
		return strconv.ParseInt(s, 10, 64)
	case "float", "decimal":
		return strconv.ParseFloat(s, 64)
	case "boolean":
		return strconv.ParseBool(s)
	default:
		return s, nil
	}
}

// boolInt is how SQLite stores booleans.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
