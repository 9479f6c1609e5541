package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coach-backend/internal/metadata"
)

// Migrator brings entity tables in line with their metadata. It only ever
// adds: tables, columns and indexes. Nothing is dropped or retyped.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// column is one column an entity table should have. def carries the
// constraints used at CREATE time; typ alone is used when adding it later.
type column struct {
	name string
	typ  string
	def  string
}

func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table %s: %w", entity.Table, err)
	}
	cols := m.columns(entity)
	if exists {
		err = m.addMissing(ctx, entity.Table, cols)
	} else {
		err = m.create(ctx, entity.Table, cols)
	}
	if err != nil {
		return err
	}
	return m.indexes(ctx, entity)
}

func (m *Migrator) columns(e *metadata.Entity) []column {
	d := m.store.Dialect
	cols := make([]column, 0, len(e.Fields)+1)
	for i := range e.Fields {
		f := &e.Fields[i]
		typ := d.ColumnType(f.Type, f.Precision)
		cols = append(cols, column{name: f.Name, typ: typ, def: typ + m.constraints(e, f)})
	}
	if e.SoftDelete && !e.HasField("deletedAt") {
		typ := d.ColumnType("timestamp", 0)
		cols = append(cols, column{name: "deletedAt", typ: typ, def: typ})
	}
	return cols
}

func (m *Migrator) constraints(e *metadata.Entity, f *metadata.Field) string {
	if f.Name == e.PrimaryKey.Field {
		return " PRIMARY KEY"
	}
	var b strings.Builder
	if f.Required && !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if lit, ok := m.literal(f.Default); ok {
		b.WriteString(" DEFAULT " + lit)
	}
	return b.String()
}

// literal renders a default value as SQL. Types without a literal form get
// no default.
func (m *Migrator) literal(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", true
	case float64, int, int64:
		return fmt.Sprint(v), true
	case bool:
		if m.store.Dialect.IntBooleans() {
			if v {
				return "1", true
			}
			return "0", true
		}
		return strconv.FormatBool(v), true
	}
	return "", false
}

func (m *Migrator) create(ctx context.Context, table string, cols []column) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = QuoteIdent(c.name) + " " + c.def
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))
	return m.exec(ctx, stmt, "create table "+table)
}

// addMissing adds absent columns as nullable; rows already in the table
// have no value for them.
func (m *Migrator) addMissing(ctx context.Context, table string, cols []column) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, table)
	if err != nil {
		return fmt.Errorf("read columns of %s: %w", table, err)
	}
	for _, c := range cols {
		if _, ok := existing[c.name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, QuoteIdent(c.name), c.typ)
		if err := m.exec(ctx, stmt, "add column "+table+"."+c.name); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) indexes(ctx context.Context, e *metadata.Entity) error {
	for _, f := range e.Fields {
		if !f.Unique {
			continue
		}
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			e.Table, f.Name, e.Table, QuoteIdent(f.Name))
		if err := m.exec(ctx, stmt, "unique index "+e.Table+"."+f.Name); err != nil {
			return err
		}
	}
	if e.SoftDelete {
		return m.exec(ctx, softDeleteIndex(e.Table), "soft delete index on "+e.Table)
	}
	return nil
}

func (m *Migrator) exec(ctx context.Context, stmt, what string) error {
	if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
