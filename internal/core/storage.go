package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"stockpile/internal/infra/persistence/memory"
	"stockpile/internal/infra/persistence/postgres"
	"stockpile/internal/infra/persistence/sqlite"
	"stockpile/internal/infra/persistence/sqlrepo"
	"stockpile/internal/migrate"
	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and locates a backend. An empty Driver means sqlite.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// Backend is an opened storage backend: its repositories plus, for SQL
// drivers, the connection and migration set behind them.
type Backend struct {
	Driver       StorageDriver
	Repositories domain.Repositories

	conn       *persistence.Conn
	migrations []migrate.Migration
	log        *slog.Logger
}

// OpenBackend constructs the repositories for cfg. SQL connections open
// lazily on first use.
func OpenBackend(cfg StorageConfig, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	b := &Backend{Driver: driver, log: log}
	switch driver {
	case StorageMemory:
		b.Repositories = memory.NewStore().Repositories()
		return b, nil
	case StorageSQLite:
		b.conn = sqlite.NewConn(cfg.SQLitePath, log)
	case StoragePostgres:
		b.conn = postgres.NewConn(cfg.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	ms, err := migrate.Builtin()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	b.migrations = ms
	b.Repositories = sqlrepo.New(b.conn)
	return b, nil
}

// Conn returns the SQL connection, or nil for the memory driver.
func (b *Backend) Conn() *persistence.Conn {
	return b.conn
}

// Migrator returns a migration runner over the backend connection. The memory
// driver has no schema and reports an error.
func (b *Backend) Migrator() (*migrate.Runner, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("storage driver %s has no schema migrations", b.Driver)
	}
	return migrate.NewRunner(b.conn, b.migrations, migrate.WithLogger(b.log))
}

// Initialize brings the schema up to date. It is the store initializer for SQL
// backends and a no-op for memory.
func (b *Backend) Initialize(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}
	runner, err := b.Migrator()
	if err != nil {
		return err
	}
	if _, err := runner.Up(ctx); err != nil {
		return err
	}
	return nil
}

// Close releases the connection.
func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
