package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	for _, tc := range []struct {
		fsys fs.FS
		dir  string
	}{
		{PostgresFS, "postgres"},
		{ClickhouseFS, "clickhouse"},
	} {
		entries, err := fs.ReadDir(tc.fsys, tc.dir)
		if err != nil {
			t.Fatalf("read %s: %v", tc.dir, err)
		}
		if len(entries) == 0 {
			t.Errorf("no %s migrations embedded", tc.dir)
		}
		for _, e := range entries {
			data, err := fs.ReadFile(tc.fsys, tc.dir+"/"+e.Name())
			if err != nil {
				t.Fatalf("read %s: %v", e.Name(), err)
			}
			if !strings.Contains(string(data), "sweep_observations") {
				t.Errorf("%s/%s does not define sweep_observations", tc.dir, e.Name())
			}
		}
	}
}

func TestSplitStatements(t *testing.T) {
	data, err := fs.ReadFile(ClickhouseFS, "clickhouse/001_sweep_results.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if err := validateNoSemicolonInStrings(string(data)); err != nil {
		t.Fatalf("validateNoSemicolonInStrings() = %v", err)
	}
	stmts := splitStatements(string(data))
	if len(stmts) != 2 {
		t.Fatalf("splitStatements() returned %d statements, want 2", len(stmts))
	}
	for _, s := range stmts {
		if !strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("unexpected statement start: %.40q", s)
		}
	}
}

func TestSplitStatements_SkipsComments(t *testing.T) {
	in := "-- header; note\nSELECT 1;\n\n-- trailing\nSELECT 2;"
	got := splitStatements(in)
	if len(got) != 2 || got[0] != "SELECT 1" || got[1] != "SELECT 2" {
		t.Errorf("splitStatements() = %q", got)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings("SELECT 'a;b'"); err == nil {
		t.Error("want error for semicolon inside string literal")
	}
	if err := validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 2"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/sweeps")
	if err != nil || db != "sweeps" {
		t.Errorf("databaseFromDSN() = %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("want error for missing database")
	}
}

func TestLoad(t *testing.T) {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].name >= files[i].name {
			t.Errorf("migrations out of order: %s before %s", files[i-1].name, files[i].name)
		}
	}
	if _, err := load(PostgresFS, "missing"); err == nil {
		t.Error("want error for missing directory")
	}
}
