package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRunMigrations_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	if err := RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, table := range []string{"client_state", "recipe_cache"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}
}

// TestRunMigrations_Idempotent は適用済みDBへの再実行が
// エラーなしで完了することを検証する（起動時に毎回呼ばれる）。
func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	if err := RunMigrations(path); err != nil {
		t.Fatalf("first RunMigrations: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
