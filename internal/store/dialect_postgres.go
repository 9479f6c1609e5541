package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is SQLSTATE 23505.
const uniqueViolation = "23505"

// PostgresDialect talks to PostgreSQL through pgx's database/sql driver.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (*PostgresDialect) Name() string       { return "postgres" }
func (*PostgresDialect) DriverName() string { return "pgx" }
func (*PostgresDialect) IntBooleans() bool  { return false }

func (*PostgresDialect) NewParamBuilder() ParamBuilder {
	return &placeholders{mark: "$"}
}

var pgTypes = map[string]string{
	"string":    "TEXT",
	"text":      "TEXT",
	"int":       "INTEGER",
	"integer":   "INTEGER",
	"bigint":    "BIGINT",
	"float":     "DOUBLE PRECISION",
	"boolean":   "BOOLEAN",
	"uuid":      "UUID",
	"timestamp": "TIMESTAMPTZ",
	"date":      "DATE",
	"json":      "JSONB",
}

func (*PostgresDialect) ColumnType(fieldType string, precision int) string {
	if fieldType == "decimal" {
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", precision)
		}
		return "NUMERIC"
	}
	if t, ok := pgTypes[fieldType]; ok {
		return t
	}
	return "TEXT"
}

var pgSystemDDL = systemDDL(sysTypes{
	id: "UUID", json: "JSONB", real: "DOUBLE PRECISION", stamp: "TIMESTAMPTZ", now: "NOW()",
})

func (*PostgresDialect) SystemDDL() string { return pgSystemDDL }

func (*PostgresDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		table,
	).Scan(&found)
	return found, err
}

func (*PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		table,
	)
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

func (*PostgresDialect) LikeExpr(column string, pb ParamBuilder, substring string) string {
	return "CAST(" + column + " AS TEXT) ILIKE " + pb.Add(containsPattern(substring))
}

func (*PostgresDialect) IntervalDeleteExpr(column string, pb ParamBuilder, days string) string {
	return fmt.Sprintf("%s < now() - make_interval(days => CAST(%s AS INTEGER))", column, pb.Add(days))
}

func (*PostgresDialect) SyncCommitOff() string { return "SET LOCAL synchronous_commit = off" }

func (*PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
