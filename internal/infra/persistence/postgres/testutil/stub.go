// Package testutil provides a recording stub database for postgres dialect tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Statement is one recorded driver call.
type Statement struct {
	Query string
	Args  []any
}

// StubConn records statements and keeps inserted rows in naive in-memory
// tables. SELECT, UPDATE and DELETE honour "col = $n" predicates joined by AND
// and ignore every other clause.
type StubConn struct {
	mu         sync.Mutex
	Execs      []Statement
	Queries    []Statement
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailPing   bool
	Commits    int
	Rollbacks  int
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// ExecQueries returns the recorded exec statements' SQL text.
func (c *StubConn) ExecQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Execs))
	for i, s := range c.Execs {
		out[i] = s.Query
	}
	return out
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, Statement{Query: query, Args: values(args)})
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	query = normalize(query)
	trimmed := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(trimmed, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(trimmed, "DELETE FROM"):
		table, where := splitWhere(query[len("DELETE FROM"):])
		preds := parsePredicates(where, args)
		var kept []map[string]any
		var removed int64
		for _, row := range c.Tables[table] {
			if matches(row, preds) {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(removed), nil
	case strings.HasPrefix(trimmed, "UPDATE"):
		return c.update(query, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) update(query string, args []driver.NamedValue) (driver.Result, error) {
	rest := strings.TrimSpace(query[len("UPDATE"):])
	setIdx := strings.Index(strings.ToUpper(rest), " SET ")
	if setIdx == -1 {
		return nil, fmt.Errorf("cannot parse update: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:setIdx]))
	assignments, where := splitWhere(rest[setIdx+len(" SET "):])
	preds := parsePredicates(where, args)
	sets := map[string]any{}
	for _, part := range strings.Split(assignments, ",") {
		col, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if idx, ok := placeholderIndex(val); ok && idx < len(args) {
			sets[strings.ToLower(strings.TrimSpace(col))] = args[idx].Value
		}
	}
	var n int64
	for _, row := range c.Tables[table] {
		if !matches(row, preds) {
			continue
		}
		for col, v := range sets {
			row[col] = v
		}
		n++
	}
	return driver.RowsAffected(n), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, Statement{Query: query, Args: values(args)})
	table, cols, where, err := parseSelect(normalize(query))
	if err != nil {
		return nil, err
	}
	preds := parsePredicates(where, args)
	var matched []map[string]any
	for _, row := range c.Tables[table] {
		if matches(row, preds) {
			matched = append(matched, row)
		}
	}
	if len(cols) == 1 && strings.HasPrefix(cols[0], "count(") {
		return &stubRows{cols: cols, rows: [][]driver.Value{{int64(len(matched))}}}, nil
	}
	out := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out = append(out, vals)
	}
	return &stubRows{cols: cols, rows: out}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.Rollbacks++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type predicate struct {
	col string
	val any
}

func matches(row map[string]any, preds []predicate) bool {
	for _, p := range preds {
		if row[p.col] != p.val {
			return false
		}
	}
	return true
}

func parsePredicates(where string, args []driver.NamedValue) []predicate {
	if where == "" {
		return nil
	}
	upper := strings.ToUpper(where)
	for _, kw := range []string{" ORDER BY ", " LIMIT "} {
		if idx := strings.Index(upper, kw); idx != -1 {
			where = where[:idx]
			upper = upper[:idx]
		}
	}
	var preds []predicate
	for _, clause := range splitAnd(where) {
		col, val, ok := strings.Cut(clause, "=")
		if !ok {
			continue
		}
		idx, ok := placeholderIndex(val)
		if !ok || idx >= len(args) {
			continue
		}
		preds = append(preds, predicate{col: strings.ToLower(strings.TrimSpace(col)), val: args[idx].Value})
	}
	return preds
}

func splitAnd(where string) []string {
	var parts []string
	upper := strings.ToUpper(where)
	for {
		idx := strings.Index(upper, " AND ")
		if idx == -1 {
			return append(parts, where)
		}
		parts = append(parts, where[:idx])
		where = where[idx+len(" AND "):]
		upper = upper[idx+len(" AND "):]
	}
}

func placeholderIndex(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "$") {
		return 0, false
	}
	n, err := strconv.Atoi(raw[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func splitWhere(rest string) (string, string) {
	idx := strings.Index(strings.ToUpper(rest), " WHERE ")
	if idx == -1 {
		return strings.ToLower(strings.TrimSpace(rest)), ""
	}
	return strings.ToLower(strings.TrimSpace(rest[:idx])), strings.TrimSpace(rest[idx+len(" WHERE "):])
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseSelect(query string) (string, []string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	query = strings.TrimSpace(query)
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	cols := query[len(selectPrefix):fromIdx]
	rest := strings.TrimSpace(query[fromIdx+len(fromToken):])
	if rest == "" {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	table, where := splitWhere(rest)
	table = strings.Fields(table)[0]
	return table, splitColumns(cols), where, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
