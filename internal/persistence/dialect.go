package persistence

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported engines.
type Dialect string

const (
	// SQLite is the embedded single-file engine.
	SQLite Dialect = "sqlite"
	// Postgres is a PostgreSQL server reached through pgx.
	Postgres Dialect = "postgres"
)

// Rebind rewrites '?' placeholders into the dialect's native form. Question
// marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			quoted = !quoted
			b.WriteByte(ch)
		case ch == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// TableExistsQuery returns a query counting tables named by its single argument.
func (d Dialect) TableExistsQuery() string {
	if d == Postgres {
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// setup lists statements executed once after a handle is opened.
func (d Dialect) setup() []string {
	if d == SQLite {
		return []string{"PRAGMA foreign_keys = ON"}
	}
	return nil
}

// maxOpenConns pins SQLite to one connection so pragmas and transactions
// share a single session. Zero means unlimited.
func (d Dialect) maxOpenConns() int {
	if d == SQLite {
		return 1
	}
	return 0
}
