package crud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"coach-backend/internal/metadata"
	"coach-backend/internal/store"
)

// fieldError mirrors the detail list the engine renders for validation.
type fieldError struct {
	Field   string
	Rule    string
	Message string
}

func validationFailure(errs []fieldError) map[string]any {
	msgs := make([]string, len(errs))
	details := make([]any, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
		details[i] = map[string]any{"field": e.Field, "rule": e.Rule, "message": e.Message}
	}
	return map[string]any{
		"success": false,
		"error":   "Validation failed: " + strings.Join(msgs, "; "),
		"errors":  details,
	}
}

// Create inserts a record. Generated string keys get a UUID and auto
// timestamp fields are stamped here.
func (a *Actions) Create(ctx context.Context, name string, input map[string]any) map[string]any {
	entity, bad := a.entity(name)
	if bad != nil {
		return bad
	}
	if errs := validateCreate(entity, input); len(errs) > 0 {
		return validationFailure(errs)
	}

	values := make(map[string]any, len(input)+3)
	for k, v := range input {
		// Absent and null look the same to the table: the column default applies.
		if v == nil {
			continue
		}
		values[k] = a.columnValue(entity.GetField(k), v)
	}
	pk := entity.PrimaryKey
	if pk.Generated && (pk.Type == "uuid" || pk.Type == "string" || pk.Type == "") {
		values[pk.Field] = uuid.NewString()
	}
	now := a.timestamp()
	for _, f := range entity.Fields {
		if f.IsAuto() {
			values[f.Name] = now
		}
	}

	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	pb := a.store.Dialect.NewParamBuilder()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.QuoteIdent(c)
		placeholders[i] = pb.Add(values[c])
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		entity.Table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "), columnList(entity))

	row, err := store.QueryRow(ctx, a.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return a.writeFailure("create", entity, err)
	}
	a.fixBooleans(entity, []map[string]any{row})
	return map[string]any{"success": true, "data": row}
}

// Update applies patch to the record. Only updatable fields are accepted.
func (a *Actions) Update(ctx context.Context, name, id string, patch map[string]any) map[string]any {
	entity, bad := a.entity(name)
	if bad != nil {
		return bad
	}
	if len(patch) == 0 {
		return failure("No updatable fields in payload")
	}
	if errs := validateUpdate(entity, patch); len(errs) > 0 {
		return validationFailure(errs)
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pb := a.store.Dialect.NewParamBuilder()
	var sets []string
	for _, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(k), pb.Add(a.columnValue(entity.GetField(k), patch[k]))))
	}
	for _, f := range entity.Fields {
		if f.Auto == "update" {
			sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(f.Name), pb.Add(a.timestamp())))
		}
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		entity.Table, strings.Join(sets, ", "), store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id))
	if entity.SoftDelete {
		sqlStr += " AND " + store.QuoteIdent("deletedAt") + " IS NULL"
	}
	sqlStr += " RETURNING " + columnList(entity)

	row, err := store.QueryRow(ctx, a.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure(notFound(entity, id))
		}
		return a.writeFailure("update", entity, err)
	}
	a.fixBooleans(entity, []map[string]any{row})
	return map[string]any{"success": true, "data": row}
}

// Delete removes the record, or stamps deletedAt when the entity keeps
// soft-deleted rows.
func (a *Actions) Delete(ctx context.Context, name, id string) map[string]any {
	entity, bad := a.entity(name)
	if bad != nil {
		return bad
	}
	pb := a.store.Dialect.NewParamBuilder()
	var sqlStr string
	if entity.SoftDelete {
		deletedAt := store.QuoteIdent("deletedAt")
		sqlStr = fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s AND %s IS NULL",
			entity.Table, deletedAt, pb.Add(a.timestamp()), store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id), deletedAt)
	} else {
		sqlStr = fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			entity.Table, store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id))
	}

	affected, err := store.Exec(ctx, a.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return a.writeFailure("delete", entity, err)
	}
	if affected == 0 {
		return failure(notFound(entity, id))
	}
	return map[string]any{"success": true, "data": map[string]any{"id": id}}
}

func (a *Actions) writeFailure(action string, entity *metadata.Entity, err error) map[string]any {
	if errors.Is(a.store.Dialect.MapError(err), store.ErrUniqueViolation) {
		return failure("A record with this value already exists")
	}
	log.Printf("ERROR: %s %s: %v", action, entity.Name, err)
	return failure(fmt.Sprintf("Failed to %s %s", action, entity.Name))
}

// timestamp is the stored form of auto fields: RFC3339 in UTC, which sorts
// correctly as text.
func (a *Actions) timestamp() string {
	return a.now().UTC().Format(time.RFC3339Nano)
}

func (a *Actions) columnValue(f *metadata.Field, v any) any {
	if f == nil || f.Type != "boolean" || !a.store.Dialect.IntBooleans() {
		return v
	}
	if b, ok := v.(bool); ok {
		return boolInt(b)
	}
	return v
}

func validateCreate(entity *metadata.Entity, input map[string]any) []fieldError {
	writable := make(map[string]metadata.Field)
	for _, f := range entity.WritableFields() {
		writable[f.Name] = f
	}
	var errs []fieldError
	errs = append(errs, unknownKeys(input, writable)...)

	for _, f := range entity.WritableFields() {
		v, present := input[f.Name]
		if f.Required && f.Default == nil && (!present || blank(v)) {
			errs = append(errs, fieldError{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
			continue
		}
		if present {
			errs = append(errs, checkEnum(f, v)...)
		}
	}
	return errs
}

func validateUpdate(entity *metadata.Entity, patch map[string]any) []fieldError {
	updatable := make(map[string]metadata.Field)
	for _, f := range entity.UpdatableFields() {
		updatable[f.Name] = f
	}
	errs := unknownKeys(patch, updatable)
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := updatable[k]
		if !ok {
			continue
		}
		if f.Required && blank(patch[k]) {
			errs = append(errs, fieldError{Field: k, Rule: "required", Message: fmt.Sprintf("%s cannot be empty", k)})
			continue
		}
		errs = append(errs, checkEnum(f, patch[k])...)
	}
	return errs
}

func unknownKeys(m map[string]any, allowed map[string]metadata.Field) []fieldError {
	var errs []fieldError
	for k := range m {
		if _, ok := allowed[k]; !ok {
			errs = append(errs, fieldError{Field: k, Rule: "unknown", Message: fmt.Sprintf("unknown field %s", k)})
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func checkEnum(f metadata.Field, v any) []fieldError {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	if f.Allows(v) {
		return nil
	}
	return []fieldError{{
		Field:   f.Name,
		Rule:    "oneof",
		Message: fmt.Sprintf("%s must be one of: %s", f.Name, strings.Join(f.Enum, ", ")),
	}}
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
