package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stockpile/internal/persistence"
)

func TestDSNDefaults(t *testing.T) {
	if got := DSN(""); !strings.HasPrefix(got, "file:"+DefaultPath+"?") {
		t.Fatalf("unexpected default dsn %q", got)
	}
	if got := DSN("/tmp/x.db"); !strings.Contains(got, "foreign_keys(1)") || !strings.Contains(got, "busy_timeout") {
		t.Fatalf("missing pragmas in %q", got)
	}
}

func TestNewConnCreatesDirectoriesAndEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "stockpile.db")
	conn := NewConn(path, nil)
	t.Cleanup(func() { _ = conn.Close() })

	if conn.Dialect() != persistence.SQLite {
		t.Fatalf("unexpected dialect %s", conn.Dialect())
	}
	var enabled int
	ok, err := conn.First(ctx, func(s persistence.Scanner) error { return s.Scan(&enabled) }, "PRAGMA foreign_keys")
	if err != nil || !ok {
		t.Fatalf("pragma query: ok=%v err=%v", ok, err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys on, got %d", enabled)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestMemoryPathSkipsDirectoryCreation(t *testing.T) {
	conn := NewConn(MemoryPath, nil)
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := conn.Exec(context.Background(), "CREATE TABLE t (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("exec on memory db: %v", err)
	}
}
