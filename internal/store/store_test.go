package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"coach-backend/internal/metadata"
)

func schoolsEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "schools",
		Table:      "schools",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		SoftDelete: true,
		Fields: []metadata.Field{
			{Name: "id", Type: "uuid"},
			{Name: "name", Type: "string", Required: true},
			{Name: "email", Type: "string", Unique: true},
			{Name: "active", Type: "boolean", Default: true},
		},
	}
}

func TestMigratorCreatesMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("information_schema\\.tables").WithArgs("schools").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`CREATE TABLE schools \(\s+"id" UUID PRIMARY KEY,\s+"name" TEXT NOT NULL,\s+"email" TEXT,\s+"active" BOOLEAN DEFAULT true,\s+"deletedAt" TIMESTAMPTZ\s+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_schools_email ON schools \("email"\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_schools_deleted_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := &Store{DB: db, Dialect: &PostgresDialect{}}
	if err := NewMigrator(s).Migrate(context.Background(), schoolsEntity()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigratorAddsMissingColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("information_schema\\.tables").WithArgs("schools").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("information_schema\\.columns").WithArgs("schools").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "uuid").AddRow("name", "text").AddRow("deletedAt", "timestamp with time zone"))
	mock.ExpectExec(`ALTER TABLE schools ADD COLUMN "email" TEXT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE schools ADD COLUMN "active" BOOLEAN`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_schools_email`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_schools_deleted_at`).WillReturnResult(sqlmock.NewResult(0, 0))

	s := &Store{DB: db, Dialect: &PostgresDialect{}}
	if err := NewMigrator(s).Migrate(context.Background(), schoolsEntity()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigratorRejectsInvalidEntity(t *testing.T) {
	s := &Store{Dialect: &SQLiteDialect{}}
	e := schoolsEntity()
	e.Table = "schools; DROP TABLE x"
	if err := NewMigrator(s).Migrate(context.Background(), e); err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}
}

func TestQueryRowsNormalizesByteColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT name, updated_at FROM _entities").
		WillReturnRows(sqlmock.NewRows([]string{"name", "updated_at"}).
			AddRow([]byte("abc"), []byte("2024-01-02 03:04:05")))

	rows, err := QueryRows(context.Background(), db, "SELECT name, updated_at FROM _entities")
	if err != nil {
		t.Fatalf("query rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["name"] != "abc" {
		t.Errorf("expected name abc, got %#v", rows[0]["name"])
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got, ok := rows[0]["updated_at"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("expected updated_at %v, got %#v", want, rows[0]["updated_at"])
	}
}

func TestQueryRowNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := QueryRow(context.Background(), db, "SELECT id FROM schools"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveEntityUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO _entities .* ON CONFLICT \\(name\\) DO UPDATE").
		WithArgs("schools", "schools", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := &Store{DB: db, Dialect: &SQLiteDialect{}}
	if err := s.SaveEntity(context.Background(), schoolsEntity()); err != nil {
		t.Fatalf("save entity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLikeExpr(t *testing.T) {
	pg := &PostgresDialect{}
	pb := pg.NewParamBuilder()
	if got := pg.LikeExpr(`"name"`, pb, "50%_off"); got != `CAST("name" AS TEXT) ILIKE $1` {
		t.Errorf("unexpected postgres expr %q", got)
	}
	if p := pb.Params()[0]; p != `%50\%\_off%` {
		t.Errorf("unexpected escaped param %q", p)
	}

	lite := &SQLiteDialect{}
	pb = lite.NewParamBuilder()
	pb.Add("x")
	if got := lite.LikeExpr(`"name"`, pb, "ab"); got != `CAST("name" AS TEXT) LIKE ?2 ESCAPE '\'` {
		t.Errorf("unexpected sqlite expr %q", got)
	}
}

func TestMapErrorUniqueViolation(t *testing.T) {
	err := (&SQLiteDialect{}).MapError(errors.New("constraint failed: UNIQUE constraint failed: schools.email"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if err := (&PostgresDialect{}).MapError(errors.New("boom")); errors.Is(err, ErrUniqueViolation) {
		t.Fatal("plain error must not map to ErrUniqueViolation")
	}
}

func TestNormalizeBooleans(t *testing.T) {
	rows := []map[string]any{{"active": int64(1), "count": int64(3)}, {"active": int64(0)}}
	NormalizeBooleans(rows, []string{"active"})
	if rows[0]["active"] != true || rows[1]["active"] != false {
		t.Fatalf("booleans not normalized: %#v", rows)
	}
	if rows[0]["count"] != int64(3) {
		t.Fatalf("non-bool field changed: %#v", rows[0]["count"])
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`createdAt`); got != `"createdAt"` {
		t.Errorf("got %s", got)
	}
	if got := QuoteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("got %s", got)
	}
}

func TestParamBuilderPlaceholders(t *testing.T) {
	pg := (&PostgresDialect{}).NewParamBuilder()
	lite := (&SQLiteDialect{}).NewParamBuilder()
	for i, v := range []any{"a", 2} {
		want := fmt.Sprintf("%d", i+1)
		if got := pg.Add(v); got != "$"+want {
			t.Errorf("postgres placeholder %d = %s", i, got)
		}
		if got := lite.Add(v); got != "?"+want {
			t.Errorf("sqlite placeholder %d = %s", i, got)
		}
	}
	if len(pg.Params()) != 2 || pg.Params()[1] != 2 {
		t.Fatalf("unexpected params %#v", pg.Params())
	}
}

func TestSystemDDLPerDialect(t *testing.T) {
	pg := (&PostgresDialect{}).SystemDDL()
	lite := (&SQLiteDialect{}).SystemDDL()
	for _, want := range []string{"attrs        JSONB", "recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()", "id           UUID PRIMARY KEY"} {
		if !strings.Contains(pg, want) {
			t.Errorf("postgres DDL missing %q", want)
		}
	}
	for _, want := range []string{"attrs        TEXT", "duration_ms  REAL", "DEFAULT (strftime("} {
		if !strings.Contains(lite, want) {
			t.Errorf("sqlite DDL missing %q", want)
		}
	}
	if strings.Contains(pg, "%!") || strings.Contains(lite, "%!") {
		t.Fatal("DDL has a formatting error")
	}
}
