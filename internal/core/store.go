// Package core holds the application state store: the in-memory view of
// inventories and items that the rest of the app reads, kept consistent with
// the repositories by explicit actions.
package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"stockpile/internal/validation"
	"stockpile/pkg/domain"
)

// Initializer prepares storage before first use, typically by applying
// migrations.
type Initializer func(ctx context.Context) error

// Option configures a Store.
type Option func(*Store)

// WithInitializer sets the function run by Initialize.
func WithInitializer(fn Initializer) Option {
	return func(s *Store) {
		s.init = fn
	}
}

// WithLogger routes action logs to log.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics observes every action with rec.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer opens a span per action.
func WithTracer(tr Tracer) Option {
	return func(s *Store) {
		if tr != nil {
			s.tracer = tr
		}
	}
}

// Store is the application state container. Actions call the repositories
// first and only mutate memory once storage succeeded.
type Store struct {
	repos   domain.Repositories
	init    Initializer
	log     *slog.Logger
	metrics MetricsRecorder
	tracer  Tracer

	initMu sync.Mutex

	mu    sync.RWMutex
	state State

	// in-flight LoadItemsForInventory calls, guarded by mu
	itemLoads int

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore constructs a store over repos.
func NewStore(repos domain.Repositories, opts ...Option) *Store {
	s := &Store{
		repos:   repos,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		subs:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every state change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// mutate applies fn under the write lock and notifies subscribers outside it.
func (s *Store) mutate(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...any) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	attrs = append(attrs, "op", op, "duration", elapsed)
	var verr *validation.Errors
	switch {
	case err == nil:
		s.log.DebugContext(ctx, "store action", attrs...)
	case errors.As(err, &verr):
		s.log.InfoContext(ctx, "store action rejected", append(attrs, "fields", verr.Map())...)
	default:
		s.log.ErrorContext(ctx, "store action failed", append(attrs, "error", err)...)
	}
	return err
}

// Initialize runs the initializer once. Concurrent callers wait for the first
// one. A failed initialization leaves the store uninitialized so it can be
// retried.
func (s *Store) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.Snapshot().Initialized {
		return nil
	}
	return s.run(ctx, "initialize", func(ctx context.Context) error {
		if s.init != nil {
			if err := s.init(ctx); err != nil {
				return err
			}
		}
		s.mutate(func(st *State) { st.Initialized = true })
		return nil
	})
}

// LoadInventories replaces the loaded inventories with the stored list.
func (s *Store) LoadInventories(ctx context.Context) error {
	return s.run(ctx, "load_inventories", func(ctx context.Context) error {
		s.mutate(func(st *State) { st.LoadingInventories = true })
		list, err := s.repos.Inventories.List(ctx)
		s.mutate(func(st *State) {
			st.LoadingInventories = false
			if err == nil {
				st.Inventories = list
			}
		})
		return err
	})
}

// LoadItemsForInventory replaces the loaded items of one inventory. Items of
// other inventories stay loaded. LoadingItems stays set until every
// overlapping load has finished.
func (s *Store) LoadItemsForInventory(ctx context.Context, inventoryID string) error {
	return s.run(ctx, "load_items", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityInventory, inventoryID); err != nil {
			return err
		}
		s.mutate(func(st *State) {
			s.itemLoads++
			st.LoadingItems = true
		})
		list, err := s.repos.Items.ListByInventory(ctx, inventoryID)
		s.mutate(func(st *State) {
			s.itemLoads--
			st.LoadingItems = s.itemLoads > 0
			if err != nil {
				return
			}
			kept := slices.DeleteFunc(st.Items, func(it domain.Item) bool {
				return it.InventoryID == inventoryID
			})
			st.Items = append(kept, list...)
		})
		return err
	}, "inventory_id", inventoryID)
}

// CreateInventory validates and stores a new inventory.
func (s *Store) CreateInventory(ctx context.Context, in domain.CreateInventory) (domain.Inventory, error) {
	var created domain.Inventory
	err := s.run(ctx, "create_inventory", func(ctx context.Context) error {
		clean, err := validation.CreateInventory(in)
		if err != nil {
			return err
		}
		created, err = s.repos.Inventories.Create(ctx, clean)
		if err != nil {
			return err
		}
		s.mutate(func(st *State) {
			st.Inventories = append(st.Inventories, created.Clone())
		})
		return nil
	})
	return created, err
}

// UpdateInventory applies a partial update. The boolean is false when no
// inventory has id.
func (s *Store) UpdateInventory(ctx context.Context, id string, in domain.UpdateInventory) (domain.Inventory, bool, error) {
	var (
		updated domain.Inventory
		found   bool
	)
	err := s.run(ctx, "update_inventory", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityInventory, id); err != nil {
			return err
		}
		clean, err := validation.UpdateInventory(in)
		if err != nil {
			return err
		}
		updated, found, err = s.repos.Inventories.Update(ctx, id, clean)
		if err != nil || !found {
			return err
		}
		s.mutate(func(st *State) {
			if i := indexByID(st.Inventories, id, inventoryKey); i >= 0 {
				st.Inventories[i] = updated.Clone()
			}
		})
		return nil
	}, "inventory_id", id)
	return updated, found, err
}

// DeleteInventory removes the inventory and its items, clearing the selection
// when it pointed at the deleted inventory.
func (s *Store) DeleteInventory(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.run(ctx, "delete_inventory", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityInventory, id); err != nil {
			return err
		}
		var err error
		removed, err = s.repos.Inventories.Delete(ctx, id)
		if err != nil {
			return err
		}
		s.mutate(func(st *State) {
			st.Inventories = slices.DeleteFunc(st.Inventories, func(inv domain.Inventory) bool { return inv.ID == id })
			st.Items = slices.DeleteFunc(st.Items, func(it domain.Item) bool { return it.InventoryID == id })
			if st.CurrentInventoryID == id {
				st.CurrentInventoryID = ""
			}
		})
		return nil
	}, "inventory_id", id)
	return removed, err
}

// CreateItem validates and stores a new item.
func (s *Store) CreateItem(ctx context.Context, in domain.CreateItem) (domain.Item, error) {
	var created domain.Item
	err := s.run(ctx, "create_item", func(ctx context.Context) error {
		clean, err := validation.CreateItem(in)
		if err != nil {
			return err
		}
		created, err = s.repos.Items.Create(ctx, clean)
		if err != nil {
			return err
		}
		s.mutate(func(st *State) {
			st.Items = append(st.Items, created.Clone())
		})
		return nil
	}, "inventory_id", in.InventoryID)
	return created, err
}

// UpdateItem applies a partial update. The boolean is false when no item has
// id.
func (s *Store) UpdateItem(ctx context.Context, id string, in domain.UpdateItem) (domain.Item, bool, error) {
	var (
		updated domain.Item
		found   bool
	)
	err := s.run(ctx, "update_item", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityItem, id); err != nil {
			return err
		}
		clean, err := validation.UpdateItem(in)
		if err != nil {
			return err
		}
		updated, found, err = s.repos.Items.Update(ctx, id, clean)
		if err != nil || !found {
			return err
		}
		s.mutate(func(st *State) {
			if i := indexByID(st.Items, id, itemKey); i >= 0 {
				st.Items[i] = updated.Clone()
			}
		})
		return nil
	}, "item_id", id)
	return updated, found, err
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.run(ctx, "delete_item", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityItem, id); err != nil {
			return err
		}
		var err error
		removed, err = s.repos.Items.Delete(ctx, id)
		if err != nil {
			return err
		}
		s.mutate(func(st *State) {
			st.Items = slices.DeleteFunc(st.Items, func(it domain.Item) bool { return it.ID == id })
		})
		return nil
	}, "item_id", id)
	return removed, err
}

// SetCurrentInventory selects an inventory. An empty id clears the selection.
func (s *Store) SetCurrentInventory(id string) {
	s.mutate(func(st *State) { st.CurrentInventoryID = id })
}

// SearchInventories queries storage without touching loaded state.
func (s *Store) SearchInventories(ctx context.Context, query string) ([]domain.Inventory, error) {
	var out []domain.Inventory
	err := s.run(ctx, "search_inventories", func(ctx context.Context) error {
		var err error
		out, err = s.repos.Inventories.Search(ctx, query)
		return err
	})
	return out, err
}

// SearchItems queries one inventory's items in storage.
func (s *Store) SearchItems(ctx context.Context, inventoryID, query string) ([]domain.Item, error) {
	var out []domain.Item
	err := s.run(ctx, "search_items", func(ctx context.Context) error {
		if err := validation.ID(domain.EntityInventory, inventoryID); err != nil {
			return err
		}
		var err error
		out, err = s.repos.Items.Search(ctx, inventoryID, query)
		return err
	}, "inventory_id", inventoryID)
	return out, err
}

// FindItemByBarcode looks an item up by its scanned barcode.
func (s *Store) FindItemByBarcode(ctx context.Context, barcode string) (domain.Item, bool, error) {
	var (
		item  domain.Item
		found bool
	)
	err := s.run(ctx, "find_item_by_barcode", func(ctx context.Context) error {
		var err error
		item, found, err = s.repos.Items.FindByBarcode(ctx, barcode)
		return err
	})
	return item, found, err
}

func inventoryKey(inv domain.Inventory) string { return inv.ID }

func itemKey(it domain.Item) string { return it.ID }

func indexByID[T any](list []T, id string, key func(T) string) int {
	return slices.IndexFunc(list, func(v T) bool { return key(v) == id })
}
