// Package sqlrepo implements the domain repositories on top of a
// persistence.Conn. Payloads are expected to be validated by the caller;
// the repositories only map between domain values and table rows.
package sqlrepo

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stockpile/internal/idgen"
	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

// timestampLayout keeps nanosecond precision and sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Option configures the repositories.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the clock used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: idgen.New}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) stamp() time.Time {
	return o.now().UTC()
}

// New returns both repositories bound to conn.
func New(conn *persistence.Conn, opts ...Option) domain.Repositories {
	return domain.Repositories{
		Inventories: NewInventoryRepository(conn, opts...),
		Items:       NewItemRepository(conn, opts...),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(column, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return t.UTC(), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(column string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(column, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableText maps absent and empty strings to NULL.
func nullableText(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func textPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// likePattern builds a substring pattern for LOWER(col) LIKE LOWER(?) ESCAPE '\'.
// Case folding is left to the engine so both sides of the comparison fold alike.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(query)) + "%"
}

// setClause accumulates column assignments for a partial update.
type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(col string, v any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (s *setClause) sql() string {
	return strings.Join(s.cols, ", ")
}

func countScan(n *int) func(persistence.Scanner) error {
	return func(s persistence.Scanner) error { return s.Scan(n) }
}
