package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"stockpile/internal/infra/persistence/postgres/testutil"
	"stockpile/internal/infra/persistence/sqlrepo"
	"stockpile/internal/migrate"
	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

func newStubConn(t *testing.T) (*persistence.Conn, *testutil.StubConn) {
	t.Helper()
	db, stub := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)
	conn := NewConn("", nil)
	if err := conn.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if gotDriver != "pgx" || gotDSN != DefaultDSN {
		t.Fatalf("unexpected open(%q, %q)", gotDriver, gotDSN)
	}
	return conn, stub
}

func TestNewConnUsesPostgresDialect(t *testing.T) {
	conn, _ := newStubConn(t)
	if conn.Dialect() != persistence.Postgres {
		t.Fatalf("expected postgres dialect, got %s", conn.Dialect())
	}
}

func TestMigrationsRunAgainstPostgresDialect(t *testing.T) {
	ctx := context.Background()
	conn, stub := newStubConn(t)
	ms, err := migrate.Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	runner, err := migrate.NewRunner(conn, ms)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one migration applied, got %v", applied)
	}
	var sawCreate, sawVersion bool
	for _, q := range stub.ExecQueries() {
		if strings.Contains(q, "CREATE TABLE IF NOT EXISTS items") {
			sawCreate = true
		}
		if strings.HasPrefix(q, "INSERT INTO schema_versions") {
			sawVersion = true
			if !strings.Contains(q, "VALUES ($1, $2)") {
				t.Fatalf("expected rebound placeholders, got %q", q)
			}
		}
	}
	if !sawCreate || !sawVersion {
		t.Fatalf("missing DDL or version insert in %v", stub.ExecQueries())
	}
	if stub.Commits != 1 {
		t.Fatalf("expected one commit, got %d", stub.Commits)
	}
	for _, q := range stub.Queries {
		if strings.Contains(q.Query, "information_schema.tables") && !strings.Contains(q.Query, "$1") {
			t.Fatalf("table lookup not rebound: %q", q.Query)
		}
	}
}

func TestRepositoriesRebindPlaceholders(t *testing.T) {
	ctx := context.Background()
	conn, stub := newStubConn(t)
	repos := sqlrepo.New(conn)

	inv, err := repos.Inventories.Create(ctx, domain.CreateInventory{Name: "Garage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok, err := repos.Inventories.Get(ctx, inv.ID)
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", ok, err)
	}
	if got.Name != "Garage" || !got.CreatedAt.Equal(inv.CreatedAt) {
		t.Fatalf("unexpected inventory %+v", got)
	}
	if _, ok, err := repos.Inventories.Get(ctx, "missing-id"); err != nil || ok {
		t.Fatalf("missing get = %v, %v", ok, err)
	}

	item, err := repos.Items.Create(ctx, domain.CreateItem{InventoryID: inv.ID, Name: "Drill", Quantity: 1, Price: domain.Ptr(19.99)})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	updated, ok, err := repos.Items.Update(ctx, item.ID, domain.UpdateItem{Quantity: domain.Ptr(2)})
	if err != nil || !ok {
		t.Fatalf("update: %v, %v", ok, err)
	}
	if updated.Quantity != 2 || updated.Price == nil || *updated.Price != 19.99 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	for _, stmt := range append(stub.Execs, stub.Queries...) {
		if strings.Contains(stmt.Query, "?") {
			t.Fatalf("unbound placeholder in %q", stmt.Query)
		}
	}
}

func TestOpenErrorsAreStorageErrors(t *testing.T) {
	cause := errors.New("dial refused")
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, cause })
	defer restore()
	conn := NewConn("postgres://example/db", nil)
	err := conn.Open(context.Background())
	var se *persistence.StorageError
	if !errors.As(err, &se) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped open failure, got %v", err)
	}
}

func TestPingFailureClosesHandle(t *testing.T) {
	db, stub := testutil.NewStubDB()
	stub.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	conn := NewConn("", nil)
	_, err := conn.Exec(context.Background(), `SELECT 1`)
	var se *persistence.StorageError
	if !errors.As(err, &se) || se.Op != "ping" {
		t.Fatalf("expected ping storage error, got %v", err)
	}
}

func TestFailedCommitSurfaces(t *testing.T) {
	conn, stub := newStubConn(t)
	stub.FailCommit = true
	err := conn.InTx(context.Background(), func(tx *persistence.Tx) error {
		_, err := tx.Exec(context.Background(), `INSERT INTO inventories (id) VALUES (?)`, "x")
		return err
	})
	var se *persistence.StorageError
	if !errors.As(err, &se) || se.Op != "commit" {
		t.Fatalf("expected commit storage error, got %v", err)
	}
}
