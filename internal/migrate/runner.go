package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"stockpile/internal/persistence"
)

const (
	versionTable     = "schema_versions"
	timestampLayout  = "2006-01-02T15:04:05.000000000Z07:00"
	selectLatest     = `SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`
	selectApplied    = `SELECT version, applied_at FROM schema_versions ORDER BY version`
	insertVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)`
	deleteVersionSQL = `DELETE FROM schema_versions WHERE version = ?`
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger routes migration progress to log.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the clock used for applied_at stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner applies migrations against a persistence context.
type Runner struct {
	conn       *persistence.Conn
	migrations []Migration
	log        *slog.Logger
	now        func() time.Time
}

// NewRunner validates the migration set and returns a runner for conn.
func NewRunner(conn *persistence.Conn, migrations []Migration, opts ...Option) (*Runner, error) {
	if conn == nil {
		return nil, fmt.Errorf("migrate: nil connection")
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i, m := range sorted {
		if m.Version <= 0 {
			return nil, fmt.Errorf("migrate: migration %q has non-positive version %d", m.Name, m.Version)
		}
		if i > 0 && sorted[i-1].Version == m.Version {
			return nil, fmt.Errorf("migrate: duplicate version %d", m.Version)
		}
	}
	r := &Runner{
		conn:       conn,
		migrations: sorted,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CurrentVersion returns the highest applied version, or 0 when no migration
// has run.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	exists, err := r.conn.TableExists(ctx, versionTable)
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", versionTable, err)
	}
	if !exists {
		return 0, nil
	}
	var version int
	if _, err := r.conn.First(ctx, func(s persistence.Scanner) error { return s.Scan(&version) }, selectLatest); err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	return version, nil
}

// Up applies every migration newer than the current version in ascending
// order, each in its own transaction. It returns the versions applied before
// any failure.
func (r *Runner) Up(ctx context.Context) ([]int, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var applied []int
	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		r.log.Info("applying migration", "version", m.Version, "name", m.Name)
		if err := r.apply(ctx, m); err != nil {
			r.log.Error("migration failed", "version", m.Version, "name", m.Name, "error", err)
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	if len(applied) == 0 {
		r.log.Debug("no pending migrations", "version", current)
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	err := r.conn.InTx(ctx, func(tx *persistence.Tx) error {
		for _, stmt := range m.Up {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, insertVersionSQL, m.Version, r.now().UTC().Format(timestampLayout))
		return err
	})
	if err != nil {
		return &MigrationError{Version: m.Version, Name: m.Name, Direction: DirectionUp, Err: err}
	}
	return nil
}

// RollbackTo reverts applied migrations newer than target in descending
// order. The version row is removed before the down statements run, since
// the first migration's down script drops the version table itself.
func (r *Runner) RollbackTo(ctx context.Context, target int) ([]int, error) {
	if target < 0 {
		return nil, fmt.Errorf("migrate: negative target version %d", target)
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if target >= current {
		return nil, nil
	}
	var plan []Migration
	for i := len(r.migrations) - 1; i >= 0; i-- {
		m := r.migrations[i]
		if m.Version > target && m.Version <= current {
			plan = append(plan, m)
		}
	}
	for _, m := range plan {
		if len(m.Down) == 0 {
			return nil, &MigrationError{Version: m.Version, Name: m.Name, Direction: DirectionDown, Err: ErrIrreversible}
		}
	}
	var reverted []int
	for _, m := range plan {
		r.log.Info("rolling back migration", "version", m.Version, "name", m.Name)
		err := r.conn.InTx(ctx, func(tx *persistence.Tx) error {
			if _, err := tx.Exec(ctx, deleteVersionSQL, m.Version); err != nil {
				return err
			}
			for _, stmt := range m.Down {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			r.log.Error("rollback failed", "version", m.Version, "name", m.Name, "error", err)
			return reverted, &MigrationError{Version: m.Version, Name: m.Name, Direction: DirectionDown, Err: err}
		}
		reverted = append(reverted, m.Version)
	}
	return reverted, nil
}

// VersionStatus describes one known migration.
type VersionStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Status lists every known migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]VersionStatus, error) {
	exists, err := r.conn.TableExists(ctx, versionTable)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", versionTable, err)
	}
	applied := map[int]time.Time{}
	if exists {
		err := r.conn.All(ctx, func(s persistence.Scanner) error {
			var (
				version int
				raw     string
			)
			if err := s.Scan(&version, &raw); err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return fmt.Errorf("parse applied_at for version %d: %w", version, err)
			}
			applied[version] = at
			return nil
		}, selectApplied)
		if err != nil {
			return nil, fmt.Errorf("read applied versions: %w", err)
		}
	}
	out := make([]VersionStatus, 0, len(r.migrations))
	for _, m := range r.migrations {
		at, ok := applied[m.Version]
		out = append(out, VersionStatus{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

// Latest returns the highest known migration version.
func (r *Runner) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}
