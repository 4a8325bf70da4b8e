package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"
)

type migrateResult struct {
	Applied  []int `json:"applied,omitempty"`
	Reverted []int `json:"reverted,omitempty"`
	Version  int   `json:"version"`
	Latest   int   `json:"latest"`
}

type migrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// runMigrate drives the schema runner directly. The store only ever migrates
// up; rolling back is a development operation.
func runMigrate(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("migrate: expected up, down or status")
	}
	runner, err := a.backend.Migrator()
	if err != nil {
		return err
	}
	switch args[0] {
	case "up":
		if _, err := parseFlags("migrate up", flag.NewFlagSet("up", flag.ContinueOnError), args[1:]); err != nil {
			return err
		}
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		version, err := runner.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		res := migrateResult{Applied: applied, Version: version, Latest: runner.Latest()}
		return a.out.emit(res, func(w io.Writer) {
			if len(applied) == 0 {
				_, _ = fmt.Fprintf(w, "schema up to date at version %d\n", version)
				return
			}
			_, _ = fmt.Fprintf(w, "applied %v, now at version %d of %d\n", applied, version, res.Latest)
		})
	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		to := fs.Int("to", -1, "target version")
		if _, err := parseFlags("migrate down", fs, args[1:]); err != nil {
			return err
		}
		if *to < 0 {
			return usagef("migrate down: -to is required")
		}
		reverted, err := runner.RollbackTo(ctx, *to)
		if err != nil {
			return err
		}
		version, err := runner.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		res := migrateResult{Reverted: reverted, Version: version, Latest: runner.Latest()}
		return a.out.emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "reverted %v, now at version %d of %d\n", reverted, version, res.Latest)
		})
	case "status":
		list, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		current, latest := 0, runner.Latest()
		out := make([]migrationStatus, 0, len(list))
		for _, st := range list {
			row := migrationStatus{Version: st.Version, Name: st.Name, Applied: st.Applied}
			if st.Applied {
				at := st.AppliedAt
				row.AppliedAt = &at
				current = max(current, st.Version)
			}
			out = append(out, row)
		}
		return a.out.emit(out, func(w io.Writer) {
			_, _ = fmt.Fprintln(w, "VERSION\tNAME\tSTATE\tAPPLIED AT")
			for _, row := range out {
				state, at := "pending", "-"
				if row.Applied {
					state, at = "applied", row.AppliedAt.Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", row.Version, row.Name, state, at)
			}
			_, _ = fmt.Fprintf(w, "at version %d of %d\n", current, latest)
		})
	default:
		return usagef("migrate: unknown subcommand %q", args[0])
	}
}
