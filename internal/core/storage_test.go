package core

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenBackendMemory(t *testing.T) {
	backend, err := OpenBackend(StorageConfig{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if backend.Conn() != nil {
		t.Fatalf("memory backend should not carry a connection")
	}
	if err := backend.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := backend.Migrator(); err == nil {
		t.Fatalf("expected migrator error for memory backend")
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenBackendDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stockpile.db")
	backend, err := OpenBackend(StorageConfig{SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = backend.Close() }()
	if backend.Driver != StorageSQLite || backend.Conn() == nil {
		t.Fatalf("expected sqlite backend, got %s", backend.Driver)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := backend.Initialize(ctx); err != nil {
			t.Fatalf("initialize %d: %v", i, err)
		}
	}
	runner, err := backend.Migrator()
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	applied := 0
	for _, st := range status {
		if st.Applied {
			applied++
		}
	}
	if applied != len(status) || applied == 0 {
		t.Fatalf("expected every migration applied once, got %+v", status)
	}
	if n, err := backend.Repositories.Inventories.Count(ctx); err != nil || n != 0 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestOpenBackendPostgresIsLazy(t *testing.T) {
	backend, err := OpenBackend(StorageConfig{Driver: StoragePostgres, PostgresDSN: "postgres://127.0.0.1:1/none"}, nil)
	if err != nil {
		t.Fatalf("postgres backend should open lazily, got %v", err)
	}
	if backend.Driver != StoragePostgres {
		t.Fatalf("unexpected driver %s", backend.Driver)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenBackendUnknownDriver(t *testing.T) {
	if _, err := OpenBackend(StorageConfig{Driver: "mysql"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
