package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"stockpile/internal/infra/persistence/sqlite"
	"stockpile/internal/persistence"
)

func newConn(t *testing.T) *persistence.Conn {
	t.Helper()
	conn := sqlite.NewConn(filepath.Join(t.TempDir(), "migrate.db"), nil)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func builtin(t *testing.T) []Migration {
	t.Helper()
	ms, err := Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	return ms
}

func newRunner(t *testing.T, conn *persistence.Conn, ms []Migration) *Runner {
	t.Helper()
	r, err := NewRunner(conn, ms)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func countVersions(t *testing.T, conn *persistence.Conn) int {
	t.Helper()
	var n int
	if _, err := conn.First(context.Background(), func(s persistence.Scanner) error { return s.Scan(&n) }, `SELECT COUNT(*) FROM schema_versions`); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	return n
}

func TestBuiltinParsesEmbeddedSQL(t *testing.T) {
	ms := builtin(t)
	if len(ms) != 1 {
		t.Fatalf("expected 1 builtin migration, got %d", len(ms))
	}
	m := ms[0]
	if m.Version != 1 || m.Name != "initial_schema" {
		t.Fatalf("unexpected migration %d %q", m.Version, m.Name)
	}
	if len(m.Up) != 7 || len(m.Down) != 7 {
		t.Fatalf("expected 7 up and 7 down statements, got %d/%d", len(m.Up), len(m.Down))
	}
	for _, stmt := range append(append([]string{}, m.Up...), m.Down...) {
		if strings.HasPrefix(stmt, "--") || !strings.HasSuffix(stmt, ";") {
			t.Fatalf("malformed statement %q", stmt)
		}
	}
}

func TestUpAppliesSchemaOnce(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := NewRunner(conn, builtin(t), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	if v, err := r.CurrentVersion(ctx); err != nil || v != 0 {
		t.Fatalf("fresh database version = %d, %v", v, err)
	}
	applied, err := r.Up(ctx)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("unexpected applied versions %v", applied)
	}
	applied, err = r.Up(ctx)
	if err != nil {
		t.Fatalf("second up: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no-op second run, applied %v", applied)
	}
	if n := countVersions(t, conn); n != 1 {
		t.Fatalf("expected one schema_versions row, got %d", n)
	}
	for _, table := range []string{"inventories", "items", "schema_versions"} {
		ok, err := conn.TableExists(ctx, table)
		if err != nil || !ok {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	var idx string
	if _, err := conn.First(ctx, func(s persistence.Scanner) error { return s.Scan(&idx) },
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, "idx_items_barcode"); err != nil || idx == "" {
		t.Fatalf("barcode index missing: %v", err)
	}

	status, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status) != 1 || !status[0].Applied || !status[0].AppliedAt.Equal(fixed) {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestUpFailureRollsBackWholeMigration(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	ms := append(builtin(t), Migration{
		Version: 2,
		Name:    "broken",
		Up:      []string{"CREATE TABLE extra (x INTEGER);", "THIS IS NOT SQL;"},
		Down:    []string{"DROP TABLE extra;"},
	})
	r := newRunner(t, conn, ms)

	applied, err := r.Up(ctx)
	var merr *MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if merr.Version != 2 || merr.Direction != DirectionUp {
		t.Fatalf("unexpected migration error %+v", merr)
	}
	var serr *persistence.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected storage cause, got %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("expected first migration applied, got %v", applied)
	}
	if ok, _ := conn.TableExists(ctx, "extra"); ok {
		t.Fatalf("partial migration left table behind")
	}
	if v, _ := r.CurrentVersion(ctx); v != 1 {
		t.Fatalf("expected version 1 after failure, got %d", v)
	}
}

func TestRollbackToZeroDropsSchema(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	r := newRunner(t, conn, builtin(t))
	if _, err := r.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	reverted, err := r.RollbackTo(ctx, 0)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if len(reverted) != 1 || reverted[0] != 1 {
		t.Fatalf("unexpected reverted versions %v", reverted)
	}
	for _, table := range []string{"inventories", "items", "schema_versions"} {
		if ok, _ := conn.TableExists(ctx, table); ok {
			t.Fatalf("table %s survived rollback", table)
		}
	}
	if v, err := r.CurrentVersion(ctx); err != nil || v != 0 {
		t.Fatalf("version after rollback = %d, %v", v, err)
	}
	if _, err := r.Up(ctx); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if reverted, err := r.RollbackTo(ctx, 1); err != nil || len(reverted) != 0 {
		t.Fatalf("rollback to current should be a no-op, got %v, %v", reverted, err)
	}
}

func TestRollbackIrreversibleFailsFast(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	ms := append(builtin(t), Migration{Version: 2, Name: "one_way", Up: []string{"CREATE TABLE extra (x INTEGER);"}})
	r := newRunner(t, conn, ms)
	if _, err := r.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	_, err := r.RollbackTo(ctx, 0)
	if !errors.Is(err, ErrIrreversible) {
		t.Fatalf("expected ErrIrreversible, got %v", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != 2 {
		t.Fatalf("expected nothing reverted, version %d", v)
	}
	if _, err := r.RollbackTo(ctx, -1); err == nil {
		t.Fatalf("expected negative target to fail")
	}
}

func TestNewRunnerValidatesVersions(t *testing.T) {
	conn := newConn(t)
	if _, err := NewRunner(conn, []Migration{{Version: 0, Name: "zero", Up: []string{"SELECT 1;"}}}); err == nil {
		t.Fatalf("expected non-positive version error")
	}
	dup := []Migration{{Version: 1, Name: "a", Up: []string{"SELECT 1;"}}, {Version: 1, Name: "b", Up: []string{"SELECT 1;"}}}
	if _, err := NewRunner(conn, dup); err == nil {
		t.Fatalf("expected duplicate version error")
	}
	if _, err := NewRunner(nil, nil); err == nil {
		t.Fatalf("expected nil connection error")
	}
}

func TestLatestIsHighestVersion(t *testing.T) {
	conn := newConn(t)
	if got := newRunner(t, conn, nil).Latest(); got != 0 {
		t.Fatalf("empty runner latest = %d", got)
	}
	ms := []Migration{
		{Version: 7, Name: "late", Up: []string{"SELECT 1;"}},
		{Version: 2, Name: "early", Up: []string{"SELECT 1;"}},
	}
	if got := newRunner(t, conn, ms).Latest(); got != 7 {
		t.Fatalf("latest = %d, want 7", got)
	}
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.up.sql":  {Data: []byte("CREATE TABLE b (x INTEGER);")},
		"m/0001_first.up.sql":   {Data: []byte("-- comment\nCREATE TABLE a (x INTEGER);\n\nCREATE INDEX ia ON a (x);")},
		"m/0001_first.down.sql": {Data: []byte("DROP TABLE a;")},
		"m/README.md":           {Data: []byte("ignored")},
	}
	ms, err := Load(fsys, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) != 2 || ms[0].Version != 1 || ms[1].Version != 2 {
		t.Fatalf("unexpected migrations %+v", ms)
	}
	if len(ms[0].Up) != 2 || len(ms[0].Down) != 1 || len(ms[1].Down) != 0 {
		t.Fatalf("unexpected statement split %+v", ms)
	}

	bad := []fstest.MapFS{
		{"m/first.up.sql": {Data: []byte("SELECT 1;")}},
		{"m/0001_first.sql": {Data: []byte("SELECT 1;")}},
		{"m/0001_first.down.sql": {Data: []byte("SELECT 1;")}},
		{"m/0001_a.up.sql": {Data: []byte("SELECT 1;")}, "m/0001_b.down.sql": {Data: []byte("SELECT 1;")}},
	}
	for i, fsys := range bad {
		if _, err := Load(fsys, "m"); err == nil {
			t.Errorf("case %d: expected load error", i)
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("CREATE TABLE a (\n  x INTEGER\n);\n-- note\nSELECT 1")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %q", stmts)
	}
	if !strings.Contains(stmts[0], "x INTEGER") || stmts[1] != "SELECT 1" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}
