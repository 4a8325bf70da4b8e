// Package persistence owns the database handle shared by repositories and the
// migration runner. A Conn is created by the composition root, opens lazily on
// first use, and exposes a small set of primitives: Exec, First, All and InTx.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// OpenFunc produces a database handle for a Conn.
type OpenFunc func(ctx context.Context) (*sql.DB, error)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Result reports the effect of an Exec. LastInsertID is zero when the driver
// does not support it.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Querier is the primitive surface shared by Conn and Tx.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	First(ctx context.Context, scan func(Scanner) error, query string, args ...any) (bool, error)
	All(ctx context.Context, scan func(Scanner) error, query string, args ...any) error
}

var (
	_ Querier = (*Conn)(nil)
	_ Querier = (*Tx)(nil)
)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger routes connection lifecycle events to log.
func WithLogger(log *slog.Logger) Option {
	return func(c *Conn) {
		if log != nil {
			c.log = log
		}
	}
}

// Conn is a lazily opened persistence context.
type Conn struct {
	dialect Dialect
	open    OpenFunc
	log     *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// New constructs a Conn. No handle is opened until the first operation or an
// explicit Open.
func New(dialect Dialect, open OpenFunc, opts ...Option) *Conn {
	c := &Conn{
		dialect: dialect,
		open:    open,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect reports the SQL dialect of the connection.
func (c *Conn) Dialect() Dialect { return c.dialect }

// Open establishes the handle. Calling Open on an open Conn is a no-op; calling
// it after Close reopens.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	_, err := c.ensureLocked(ctx)
	return err
}

// Close releases the handle. Subsequent operations fail with ErrClosed until
// Open is called again.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.db == nil {
		return nil
	}
	db := c.db
	c.db = nil
	if err := db.Close(); err != nil {
		return wrap("close", "", err)
	}
	c.log.Debug("database closed", "dialect", c.dialect)
	return nil
}

func (c *Conn) handle(ctx context.Context, op string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &StorageError{Op: op, Err: ErrClosed}
	}
	return c.ensureLocked(ctx)
}

func (c *Conn) ensureLocked(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	if c.open == nil {
		return nil, &StorageError{Op: "open", Err: errors.New("no opener configured")}
	}
	db, err := c.open(ctx)
	if err != nil {
		return nil, wrap("open", "", err)
	}
	if n := c.dialect.maxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap("ping", "", err)
	}
	for _, stmt := range c.dialect.setup() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, wrap("setup", stmt, err)
		}
	}
	c.db = db
	c.log.Debug("database opened", "dialect", c.dialect)
	return db, nil
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	db, err := c.handle(ctx, "exec")
	if err != nil {
		return Result{}, err
	}
	return execOn(ctx, db, c.dialect, query, args)
}

// First scans the first row of a query. It reports false, without error, when
// the query yields no rows.
func (c *Conn) First(ctx context.Context, scan func(Scanner) error, query string, args ...any) (bool, error) {
	db, err := c.handle(ctx, "query")
	if err != nil {
		return false, err
	}
	return firstOn(ctx, db, c.dialect, scan, query, args)
}

// All calls scan once per row of a query.
func (c *Conn) All(ctx context.Context, scan func(Scanner) error, query string, args ...any) error {
	db, err := c.handle(ctx, "query")
	if err != nil {
		return err
	}
	return allOn(ctx, db, c.dialect, scan, query, args)
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil; otherwise it rolls back and fn's error is returned unchanged. A panic
// in fn rolls back and is re-raised.
func (c *Conn) InTx(ctx context.Context, fn func(*Tx) error) error {
	db, err := c.handle(ctx, "begin")
	if err != nil {
		return err
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", "", err)
	}
	tx := &Tx{tx: sqlTx, dialect: c.dialect}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, wrap("rollback", "", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return wrap("commit", "", err)
	}
	return nil
}

// TableExists reports whether a table named name exists.
func (c *Conn) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	_, err := c.First(ctx, func(s Scanner) error { return s.Scan(&n) }, c.dialect.TableExistsQuery(), name)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Tx exposes the Conn primitives inside a transaction.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return execOn(ctx, t.tx, t.dialect, query, args)
}

// First scans the first row of a query inside the transaction.
func (t *Tx) First(ctx context.Context, scan func(Scanner) error, query string, args ...any) (bool, error) {
	return firstOn(ctx, t.tx, t.dialect, scan, query, args)
}

// All scans every row of a query inside the transaction.
func (t *Tx) All(ctx context.Context, scan func(Scanner) error, query string, args ...any) error {
	return allOn(ctx, t.tx, t.dialect, scan, query, args)
}

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execOn(ctx context.Context, r sqlRunner, d Dialect, query string, args []any) (Result, error) {
	q := d.Rebind(query)
	res, err := r.ExecContext(ctx, q, args...)
	if err != nil {
		return Result{}, wrap("exec", q, err)
	}
	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, wrap("exec", q, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

func firstOn(ctx context.Context, r sqlRunner, d Dialect, scan func(Scanner) error, query string, args []any) (bool, error) {
	q := d.Rebind(query)
	rows, err := r.QueryContext(ctx, q, args...)
	if err != nil {
		return false, wrap("query", q, err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, wrap("query", q, err)
		}
		return false, nil
	}
	if err := scan(rows); err != nil {
		return false, wrap("scan", q, err)
	}
	return true, nil
}

func allOn(ctx context.Context, r sqlRunner, d Dialect, scan func(Scanner) error, query string, args []any) error {
	q := d.Rebind(query)
	rows, err := r.QueryContext(ctx, q, args...)
	if err != nil {
		return wrap("query", q, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return wrap("scan", q, err)
		}
	}
	if err := rows.Err(); err != nil {
		return wrap("query", q, err)
	}
	return nil
}
