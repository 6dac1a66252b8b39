package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const scriptCount = 2

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestScripts_Ordered(t *testing.T) {
	scripts, err := Scripts()
	if err != nil {
		t.Fatalf("load scripts: %v", err)
	}
	if len(scripts) != scriptCount {
		t.Fatalf("got %d scripts, want %d", len(scripts), scriptCount)
	}
	if scripts[0].Name != "001_init" || scripts[1].Name != "002_runs" {
		t.Errorf("names = %s, %s", scripts[0].Name, scripts[1].Name)
	}
}

func TestRun_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)

	if err := Run(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := Version(ctx, db)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if version != scriptCount {
		t.Errorf("version = %d, want %d", version, scriptCount)
	}

	for _, table := range []string{"sessions", "exchanges", "kv_store", "runs", "confirmations", "_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var name string
	if err := db.QueryRow("SELECT name FROM _migrations WHERE version = 2").Scan(&name); err != nil || name != "002_runs" {
		t.Errorf("recorded name = %q, %v", name, err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)

	for i := 0; i < 2; i++ {
		if err := Run(ctx, db); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != scriptCount {
		t.Errorf("migration count = %d, want %d", count, scriptCount)
	}
}

func TestPending(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)

	if err := ensureMigrationsTable(ctx, db); err != nil {
		t.Fatalf("ensure migrations table: %v", err)
	}
	pending, err := Pending(ctx, db)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != scriptCount || pending[0] != 1 {
		t.Errorf("pending = %v, want %d versions starting at 1", pending, scriptCount)
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pending, err = Pending(ctx, db)
	if err != nil {
		t.Fatalf("get pending after run: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after run = %v, want none", pending)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("002_runs.sql"); err != nil || v != 2 {
		t.Errorf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("readme.sql"); err == nil {
		t.Error("expected error for name without version prefix")
	}
}
