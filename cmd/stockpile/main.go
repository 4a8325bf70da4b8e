// Command stockpile manages inventories and items from the terminal. It is the
// composition root: configuration, logging, storage, the state store and the
// export worker are wired here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"stockpile/internal/config"
	"stockpile/internal/validation"
)

var exitFunc = os.Exit

const usage = `usage: stockpile [-config file] [-json] [-trace] <command> [args]

commands:
  migrate    up | down -to N | status
  inventory  list | show <id> | create -name N | update <id> [flags] | delete <id> | search <query>
  item       list <inventory-id> | create -inventory ID -name N [flags] | update <id> [flags]
             delete <id> | search <inventory-id> <query> | barcode <code>
  export     [-inventory ID]... [-format json|csv]... [-actor name]
  env        list configuration variables
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"migrate":   runMigrate,
	"inventory": runInventory,
	"item":      runItem,
	"export":    runExport,
}

// usageError marks a malformed invocation; cli exits with status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

var errNotFound = errors.New("not found")

// main runs the command-line interface and exits with the status code
// returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stockpile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to a YAML config file (default $"+config.PathEnv+")")
	asJSON := fs.Bool("json", false, "print results as JSON")
	trace := fs.Bool("trace", false, "write a JSON trace line per store action to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	if rest[0] == "env" {
		text, err := config.Describe()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "describe config: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprint(stdout, text)
		return 0
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, stdout, stderr, appOptions{json: *asJSON, trace: *trace})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.close()

	if err := cmd(ctx, a, rest[1:]); err != nil {
		var (
			uerr usageError
			verr *validation.Errors
		)
		switch {
		case errors.As(err, &uerr):
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		case errors.As(err, &verr):
			_, _ = fmt.Fprintf(stderr, "invalid input: %v\n", err)
		default:
			_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

type printer struct {
	w    io.Writer
	json bool
}

// emit writes v as indented JSON, or calls text with a tab-aligned writer.
func (p *printer) emit(v any, text func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// parseFlags parses args into fs and reports which flags were set explicitly.
func parseFlags(name string, fs *flag.FlagSet, args []string) (map[string]bool, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, usagef("%s: %v", name, err)
	}
	if fs.NArg() > 0 {
		return nil, usagef("%s: unexpected argument %q", name, fs.Arg(0))
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set, nil
}

func optional(set map[string]bool, name, v string) *string {
	if !set[name] {
		return nil
	}
	return &v
}
