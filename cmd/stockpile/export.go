package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"stockpile/internal/export"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	var inventories, formats stringList
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.Var(&inventories, "inventory", "inventory id to export (repeatable, default all)")
	fs.Var(&formats, "format", "json or csv (repeatable, default both)")
	actor := fs.String("actor", "cli", "name recorded in the export audit log")
	if _, err := parseFlags("export", fs, args); err != nil {
		return err
	}
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	req := export.Request{InventoryIDs: inventories, RequestedBy: *actor}
	for _, f := range formats {
		req.Formats = append(req.Formats, export.Format(f))
	}
	worker := export.NewWorker(a.backend.Repositories, store, export.WithLogger(a.log))
	record, err := worker.Run(ctx, req)
	if err != nil {
		return err
	}
	return a.out.emit(record, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "export %s %s (%s)\n", record.ID, record.Status, store.Driver())
		for _, art := range record.Artifacts {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d bytes\n", art.Key, art.ContentType, art.SizeBytes)
		}
	})
}
