// Package migrate applies and reverts versioned schema migrations recorded in
// the schema_versions table.
package migrate

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var builtinFS embed.FS

// ErrIrreversible is returned when a rollback reaches a migration without
// down statements.
var ErrIrreversible = errors.New("migration has no down statements")

// Direction names the way a migration is run.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

// MigrationError reports the migration that failed and why.
type MigrationError struct {
	Version   int
	Name      string
	Direction Direction
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) %s: %v", e.Version, e.Name, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Builtin returns the migrations embedded in the binary.
func Builtin() ([]Migration, error) {
	return Load(builtinFS, "sql")
}

// Load reads migrations from dir in fsys. Files are named
// NNNN_name.up.sql and NNNN_name.down.sql; a missing down file leaves the
// migration irreversible.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, direction, err := parseFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, name)
		}
		stmts := SplitStatements(string(raw))
		if direction == DirectionUp {
			m.Up = stmts
		} else {
			m.Down = stmts
		}
	}
	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if len(m.Up) == 0 {
			return nil, fmt.Errorf("migration %d (%s) has no up statements", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseFilename(file string) (int, string, Direction, error) {
	base := strings.TrimSuffix(file, ".sql")
	var direction Direction
	switch {
	case strings.HasSuffix(base, ".up"):
		direction = DirectionUp
	case strings.HasSuffix(base, ".down"):
		direction = DirectionDown
	default:
		return 0, "", "", fmt.Errorf("migration file %s: missing .up or .down suffix", file)
	}
	base = strings.TrimSuffix(base, "."+string(direction))
	rawVersion, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("migration file %s: expected NNNN_name", file)
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("migration file %s: invalid version %q", file, rawVersion)
	}
	return version, name, direction, nil
}

// SplitStatements splits a semicolon-terminated script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(script string) []string {
	scanner := bufio.NewScanner(strings.NewReader(script))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
