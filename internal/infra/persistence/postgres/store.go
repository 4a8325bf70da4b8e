// Package postgres opens PostgreSQL databases through the pgx database/sql
// driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"stockpile/internal/persistence"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/stockpile?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Opener returns an OpenFunc for dsn (falls back to DefaultDSN).
func Opener(dsn string) persistence.OpenFunc {
	if dsn == "" {
		dsn = DefaultDSN
	}
	return func(context.Context) (*sql.DB, error) {
		openMu.Lock()
		db, err := sqlOpen(defaultDriver, dsn)
		openMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	}
}

// NewConn constructs a lazily opened Postgres persistence context.
func NewConn(dsn string, log *slog.Logger) *persistence.Conn {
	return persistence.New(persistence.Postgres, Opener(dsn), persistence.WithLogger(log))
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
