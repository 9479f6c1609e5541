package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect covers what differs between PostgreSQL and SQLite: placeholders,
// column types, catalogue lookups and constraint errors.
type Dialect interface {
	Name() string
	DriverName() string
	NewParamBuilder() ParamBuilder
	ColumnType(fieldType string, precision int) string

	// SystemDDL creates _entities and _events.
	SystemDDL() string
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)
	GetColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error)

	// LikeExpr matches substring anywhere in column, ignoring case.
	LikeExpr(column string, pb ParamBuilder, substring string) string
	// IntervalDeleteExpr is true for rows whose column is older than days.
	IntervalDeleteExpr(column string, pb ParamBuilder, days string) string
	// SyncCommitOff relaxes durability for the current transaction, or is
	// empty when the database has no such switch.
	SyncCommitOff() string

	// MapError wraps constraint violations in ErrUniqueViolation.
	MapError(err error) error
	// IntBooleans reports that booleans are stored as 0/1.
	IntBooleans() bool
}

// ParamBuilder collects bind values and hands out their placeholders.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
}

// NewDialect picks the dialect for a configured driver. Anything but
// "sqlite" is PostgreSQL.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// QuoteIdent double-quotes an identifier. Entity fields are camelCase and
// Postgres folds unquoted identifiers to lower case.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns s into a LIKE pattern matching it literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// placeholders numbers bind values; mark renders the nth one.
type placeholders struct {
	args []any
	mark string
}

func (p *placeholders) Add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("%s%d", p.mark, len(p.args))
}

func (p *placeholders) Params() []any { return p.args }

// sysTypes are the per-dialect column types of the system tables.
type sysTypes struct {
	id, json, real, stamp, now string
}

// systemDDL renders _entities and _events for one dialect. Event rows are
// written by the instrument package; see its eventColumns.
func systemDDL(t sysTypes) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS _entities (
    name        TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL UNIQUE,
    definition  %[2]s NOT NULL,
    updated_at  %[4]s DEFAULT %[5]s
);

CREATE TABLE IF NOT EXISTS _events (
    id           %[1]s PRIMARY KEY,
    trace_id     TEXT NOT NULL,
    span_id      TEXT NOT NULL,
    parent_id    TEXT,
    kind         TEXT NOT NULL,
    op           TEXT NOT NULL,
    entity       TEXT,
    record_id    TEXT,
    duration_ms  %[3]s,
    status       TEXT,
    attrs        %[2]s,
    recorded_at  %[4]s NOT NULL DEFAULT %[5]s
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity ON _events (entity, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_recorded ON _events (recorded_at DESC);
`, t.id, t.json, t.real, t.stamp, t.now)
}

// softDeleteIndex is a partial index over live rows; both databases accept it.
func softDeleteIndex(table string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_deleted_at ON %[1]s ("deletedAt") WHERE "deletedAt" IS NULL`, table)
}
