package db

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestLoadMigrationsOrdersAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"010_requests.sql": {Data: []byte("CREATE TABLE b();")},
		"002_doctors.sql":  {Data: []byte("CREATE TABLE a();")},
		"README.md":        {Data: []byte("notes")},
		"seed.sql":         {Data: []byte("-- no version")},
		"x_bad.sql":        {Data: []byte("-- bad prefix")},
	}
	got, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 2 || got[1].Version != 10 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].SQL != "CREATE TABLE b();" {
		t.Fatalf("unexpected sql: %q", got[1].SQL)
	}
}

func TestLoadMigrationsRejectsDuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("")},
		"001_b.sql": {Data: []byte("")},
	}
	if _, err := LoadMigrations(files); err == nil {
		t.Fatalf("expected duplicate version error")
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := errors.Join(errors.New("insert appointment"), &pgconn.PgError{Code: CodeExclusionViolation})
	if !HasCode(wrapped, CodeExclusionViolation) {
		t.Fatalf("expected exclusion violation")
	}
	if HasCode(wrapped, CodeUniqueViolation) {
		t.Fatalf("unexpected unique violation")
	}
	if !IsNotFound(pgx.ErrNoRows) {
		t.Fatalf("expected not found")
	}
}
