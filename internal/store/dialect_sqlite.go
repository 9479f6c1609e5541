package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqliteNow matches the RFC 3339 text the event buffer writes, so stored
// timestamps compare as strings.
const sqliteNow = `(strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`

// SQLiteDialect talks to SQLite through modernc.org/sqlite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (*SQLiteDialect) Name() string       { return "sqlite" }
func (*SQLiteDialect) DriverName() string { return "sqlite" }
func (*SQLiteDialect) IntBooleans() bool  { return true }

func (*SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &placeholders{mark: "?"}
}

// ColumnType uses SQLite's storage classes; precision has no effect.
func (*SQLiteDialect) ColumnType(fieldType string, _ int) string {
	switch fieldType {
	case "int", "integer", "bigint", "boolean":
		return "INTEGER"
	case "float", "decimal":
		return "REAL"
	}
	return "TEXT"
}

var sqliteSystemDDL = systemDDL(sysTypes{
	id: "TEXT", json: "TEXT", real: "REAL", stamp: "TEXT", now: sqliteNow,
})

func (*SQLiteDialect) SystemDDL() string { return sqliteSystemDDL }

func (*SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?1", table,
	).Scan(&n)
	return n > 0, err
}

// GetColumns reads PRAGMA table_info; only the name and type columns matter.
func (*SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?1)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]string{}
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols[name] = typ
	}
	return cols, rows.Err()
}

// LikeExpr relies on LIKE being case-insensitive for ASCII.
func (*SQLiteDialect) LikeExpr(column string, pb ParamBuilder, substring string) string {
	return "CAST(" + column + " AS TEXT) LIKE " + pb.Add(containsPattern(substring)) + ` ESCAPE '\'`
}

func (*SQLiteDialect) IntervalDeleteExpr(column string, pb ParamBuilder, days string) string {
	return fmt.Sprintf("%s < strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now', '-' || %s || ' days')", column, pb.Add(days))
}

func (*SQLiteDialect) SyncCommitOff() string { return "" }

func (*SQLiteDialect) MapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
