// Package export renders inventories and their items into JSON and CSV
// artifacts and stores them in a blob store, either through a background
// worker queue or synchronously.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockpile/internal/blob"
	"stockpile/internal/validation"
	"stockpile/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const defaultQueueSize = 32

// ErrQueueFull is returned by Enqueue when the worker backlog is saturated.
var ErrQueueFull = errors.New("export queue full")

// Artifact captures a stored export file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID           string     `json:"id"`
	InventoryIDs []string   `json:"inventory_ids,omitempty"`
	Formats      []Format   `json:"formats"`
	Status       Status     `json:"status"`
	Error        string     `json:"error,omitempty"`
	Artifacts    []Artifact `json:"artifacts,omitempty"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Request selects what to export. No inventory IDs means every inventory; no
// formats means JSON and CSV.
type Request struct {
	InventoryIDs []string
	Formats      []Format
	RequestedBy  string
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger routes audit lines to log.
func WithLogger(log *slog.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker executes exports asynchronously.
type Worker struct {
	repos     domain.Repositories
	store     blob.Store
	log       *slog.Logger
	now       func() time.Time
	queueSize int

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id string
}

// NewWorker constructs an export worker reading from repos and writing to store.
func NewWorker(repos domain.Repositories, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		repos:     repos,
		store:     store,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		queueSize: defaultQueueSize,
		jobs:      make(map[string]*Record),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan task, w.queueSize)
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(w.ctx, t)
		}
	}
}

// Enqueue schedules an export and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	record, err := w.register(ctx, req)
	if err != nil {
		return Record{}, err
	}
	select {
	case w.queue <- task{id: record.ID}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	return record, nil
}

// Run executes an export synchronously and returns the final record. A failed
// export is reported both in the record and as the error.
func (w *Worker) Run(ctx context.Context, req Request) (Record, error) {
	record, err := w.register(ctx, req)
	if err != nil {
		return Record{}, err
	}
	w.process(ctx, task{id: record.ID})
	final, _ := w.Get(record.ID)
	if final.Status == StatusFailed {
		return final, fmt.Errorf("export %s: %s", final.ID, final.Error)
	}
	return final, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) register(ctx context.Context, req Request) (Record, error) {
	formats, err := normalizeFormats(req.Formats)
	if err != nil {
		return Record{}, err
	}
	ids := make([]string, 0, len(req.InventoryIDs))
	for _, id := range req.InventoryIDs {
		id = strings.TrimSpace(id)
		if err := validation.ID(domain.EntityInventory, id); err != nil {
			return Record{}, err
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	now := w.now().UTC()
	record := Record{
		ID:           uuid.NewString(),
		InventoryIDs: ids,
		Formats:      formats,
		Status:       StatusQueued,
		RequestedBy:  req.RequestedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()
	w.audit(ctx, snapshot, "")
	return snapshot, nil
}

func normalizeFormats(in []Format) ([]Format, error) {
	if len(in) == 0 {
		return []Format{FormatJSON, FormatCSV}, nil
	}
	out := make([]Format, 0, len(in))
	for _, f := range in {
		f = Format(strings.ToLower(strings.TrimSpace(string(f))))
		if f != FormatJSON && f != FormatCSV {
			return nil, fmt.Errorf("unsupported export format %q", f)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (w *Worker) process(ctx context.Context, t task) {
	w.transition(ctx, t.id, StatusRunning, "", nil)
	snap, err := w.collect(ctx, t.id)
	if err != nil {
		w.transition(ctx, t.id, StatusFailed, err.Error(), nil)
		return
	}
	record, _ := w.Get(t.id)
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := render(format, snap)
		if err != nil {
			w.transition(ctx, t.id, StatusFailed, err.Error(), nil)
			return
		}
		key := fmt.Sprintf("exports/%s/%s", t.id, rendered.name)
		info, err := w.store.Put(ctx, key, bytes.NewReader(rendered.payload), blob.PutOptions{
			ContentType: rendered.contentType,
			Metadata:    map[string]string{"export-id": t.id, "format": string(format)},
		})
		if err != nil {
			w.transition(ctx, t.id, StatusFailed, fmt.Sprintf("store artifact failed: %v", err), nil)
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: rendered.contentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   info.LastModified,
		})
	}
	w.transition(ctx, t.id, StatusSucceeded, "", artifacts)
}

// collect reads the requested inventories and their items, rejecting any
// record that fails the stored-shape checks.
func (w *Worker) collect(ctx context.Context, id string) (snapshot, error) {
	record, _ := w.Get(id)
	snap := snapshot{ExportID: id, ExportedAt: w.now().UTC()}
	var inventories []domain.Inventory
	if len(record.InventoryIDs) == 0 {
		list, err := w.repos.Inventories.List(ctx)
		if err != nil {
			return snapshot{}, fmt.Errorf("list inventories: %w", err)
		}
		inventories = list
	} else {
		for _, invID := range record.InventoryIDs {
			inv, ok, err := w.repos.Inventories.Get(ctx, invID)
			if err != nil {
				return snapshot{}, fmt.Errorf("get inventory %s: %w", invID, err)
			}
			if !ok {
				return snapshot{}, fmt.Errorf("inventory %s not found", invID)
			}
			inventories = append(inventories, inv)
		}
	}
	for _, inv := range inventories {
		if err := validation.Inventory(inv); err != nil {
			return snapshot{}, fmt.Errorf("inventory %s: %w", inv.ID, err)
		}
		items, err := w.repos.Items.ListByInventory(ctx, inv.ID)
		if err != nil {
			return snapshot{}, fmt.Errorf("list items of %s: %w", inv.ID, err)
		}
		for _, item := range items {
			if err := validation.Item(item); err != nil {
				return snapshot{}, fmt.Errorf("item %s: %w", item.ID, err)
			}
		}
		snap.Inventories = append(snap.Inventories, inventoryExport{Inventory: inv, Items: items})
	}
	return snap, nil
}

func (w *Worker) transition(ctx context.Context, id string, status Status, message string, artifacts []Artifact) {
	now := w.now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.Status = status
	record.Error = message
	record.UpdatedAt = now
	if status == StatusSucceeded || status == StatusFailed {
		record.CompletedAt = &now
	}
	if artifacts != nil {
		record.Artifacts = artifacts
	}
	snapshot := record.copy()
	w.mu.Unlock()
	w.audit(ctx, snapshot, message)
}

func (w *Worker) audit(ctx context.Context, r Record, message string) {
	attrs := []any{
		"export_id", r.ID,
		"status", r.Status,
		"actor", r.RequestedBy,
		"inventories", len(r.InventoryIDs),
	}
	if len(r.Artifacts) > 0 {
		attrs = append(attrs, "artifacts", len(r.Artifacts))
	}
	if r.Status == StatusFailed {
		w.log.WarnContext(ctx, "inventory export", append(attrs, "error", message)...)
		return
	}
	w.log.InfoContext(ctx, "inventory export", attrs...)
}

func (r Record) copy() Record {
	dup := r
	dup.InventoryIDs = slices.Clone(r.InventoryIDs)
	dup.Formats = slices.Clone(r.Formats)
	dup.Artifacts = slices.Clone(r.Artifacts)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}
