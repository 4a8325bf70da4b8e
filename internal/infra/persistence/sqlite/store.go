// Package sqlite opens embedded SQLite databases through the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stockpile/internal/persistence"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	driverName = "sqlite"
	// DefaultPath is used when no database path is configured.
	DefaultPath = "stockpile.db"
	// MemoryPath selects a private in-memory database.
	MemoryPath = ":memory:"
)

// DSN builds a connection string that enables foreign keys and a busy timeout
// on every connection the driver creates.
func DSN(path string) string {
	if path == "" {
		path = DefaultPath
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Opener returns an OpenFunc for the database file at path, creating parent
// directories as needed.
func Opener(path string) persistence.OpenFunc {
	if path == "" {
		path = DefaultPath
	}
	return func(context.Context) (*sql.DB, error) {
		if path != MemoryPath {
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
		db, err := sql.Open(driverName, DSN(path))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}
}

// NewConn constructs a lazily opened SQLite persistence context.
func NewConn(path string, log *slog.Logger) *persistence.Conn {
	return persistence.New(persistence.SQLite, Opener(path), persistence.WithLogger(log))
}
