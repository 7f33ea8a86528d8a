package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchema_Fresh(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion() error = %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	for _, table := range []string{"runs", "records", "schema_version"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	for i := range 3 {
		if err := InitSchema(ctx, db); err != nil {
			t.Fatalf("InitSchema() pass %d error = %v", i, err)
		}
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("schema_version has %d rows, want 1", rows)
	}
}

func TestInitSchema_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	if err := InitSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	err := InitSchema(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("InitSchema() = %v, want newer-version error", err)
	}
}

func TestValidateIntegrity(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	if err := InitSchema(ctx, db); err != nil {
		t.Fatal(err)
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity() on fresh db = %v", err)
	}

	// foreign keys are off on this raw connection, so an orphan can be inserted
	if _, err := db.ExecContext(ctx,
		`INSERT INTO records (run_id, seq, pid, kind, value) VALUES (99, 0, 0, 'switch', 0)`); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIntegrity(ctx, db); err == nil || !strings.Contains(err.Error(), "foreign_key_check") {
		t.Errorf("ValidateIntegrity() = %v, want foreign key failure", err)
	}
}

func TestDefaultDBPath(t *testing.T) {
	got, err := DefaultDBPath("/work/project")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/work/project", ".memtrace", DBFile); got != want {
		t.Errorf("DefaultDBPath(root) = %q, want %q", got, want)
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err = DefaultDBPath("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".memtrace", DBFile); got != want {
		t.Errorf("DefaultDBPath(\"\") = %q, want %q", got, want)
	}
}
