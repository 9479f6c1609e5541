// Package store owns the database handle: opening it per dialect, the
// system tables, entity table migration and row-to-map query helpers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver
	_ "modernc.org/sqlite"             // "sqlite" driver

	"coach-backend/internal/config"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens and pings the configured database.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dialect := NewDialect(cfg.Driver)
	if cfg.IsSQLite() && cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}
	if err := tune(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

// tune sizes the pool. SQLite gets one connection in WAL mode: a single
// writer, and readers that do not block it.
func tune(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	if !cfg.IsSQLite() {
		if cfg.PoolSize > 0 {
			db.SetMaxOpenConns(cfg.PoolSize)
		}
		return nil
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.DB.Close()
}

// QueryRows returns every row as a column-keyed map.
func QueryRows(ctx context.Context, q Querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		m, err := scanMap(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanMap(rows *sql.Rows, cols []string) (map[string]any, error) {
	cells := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	m := make(map[string]any, len(cols))
	for i, col := range cols {
		m[col] = cell(cells[i])
	}
	return m, nil
}

// sqliteDatetime is the layout of SQLite's datetime().
const sqliteDatetime = "2006-01-02 15:04:05"

// cell turns driver bytes into a string, or a time when they hold a
// datetime() value.
func cell(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if t, err := time.Parse(sqliteDatetime, string(b)); err == nil {
		return t
	}
	return string(b)
}

// QueryRow returns the first row, or ErrNotFound.
func QueryRow(ctx context.Context, q Querier, query string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec runs a statement and reports the rows it touched.
func Exec(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return res.RowsAffected()
}

// Count scans the single integer a COUNT query returns.
func Count(ctx context.Context, q Querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// NormalizeBooleans rewrites 0/1 in the named fields to false/true, for
// dialects where IntBooleans holds.
func NormalizeBooleans(rows []map[string]any, fields []string) {
	for _, row := range rows {
		for _, f := range fields {
			switch v := row[f].(type) {
			case int64:
				row[f] = v != 0
			case int:
				row[f] = v != 0
			case float64:
				row[f] = v != 0
			}
		}
	}
}
