package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coach-backend/internal/metadata"
)

// Bootstrap creates the system tables.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemDDL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}

// SaveEntity records e in _entities, replacing any earlier definition.
func (s *Store) SaveEntity(ctx context.Context, e *metadata.Entity) error {
	def, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity %s: %w", e.Name, err)
	}
	pb := s.Dialect.NewParamBuilder()
	values := []string{
		pb.Add(e.Name), pb.Add(e.Table), pb.Add(string(def)),
		pb.Add(time.Now().UTC().Format(time.RFC3339Nano)),
	}
	stmt := "INSERT INTO _entities (name, table_name, definition, updated_at) VALUES (" +
		strings.Join(values, ", ") + ")" +
		" ON CONFLICT (name) DO UPDATE SET table_name = excluded.table_name," +
		" definition = excluded.definition, updated_at = excluded.updated_at"
	if _, err := Exec(ctx, s.DB, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("save entity %s: %w", e.Name, s.Dialect.MapError(err))
	}
	return nil
}

// Provision migrates each entity's table, records its definition and loads
// it into the registry.
func (s *Store) Provision(ctx context.Context, reg *metadata.Registry, entities ...*metadata.Entity) error {
	migrator := NewMigrator(s)
	for _, e := range entities {
		if err := migrator.Migrate(ctx, e); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Name, err)
		}
		if err := s.SaveEntity(ctx, e); err != nil {
			return err
		}
	}
	return metadata.LoadAll(ctx, s.DB, reg)
}
