// Package memory provides an in-memory implementation of the inventory and
// item repositories used for tests and ephemeral environments. It emulates the
// relational backend: item writes must reference an existing inventory and
// deleting an inventory cascades to its items.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"stockpile/internal/idgen"
	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

// ErrForeignKey reports an item referencing an unknown inventory. It is
// returned wrapped in a *persistence.StorageError, like the engine error the
// SQL backends produce.
var ErrForeignKey = errors.New("memory: foreign key constraint failed")

var (
	_ domain.InventoryRepository = inventoryRepo{}
	_ domain.ItemRepository      = itemRepo{}
)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Inventories map[string]domain.Inventory `json:"inventories"`
	Items       map[string]domain.Item      `json:"items"`
}

type memoryState struct {
	inventories map[string]domain.Inventory
	items       map[string]domain.Item
}

func newMemoryState() memoryState {
	return memoryState{
		inventories: make(map[string]domain.Inventory),
		items:       make(map[string]domain.Item),
	}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store holds inventories and items in maps guarded by a single lock.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
	newID func() string
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newMemoryState(),
		nowFn: time.Now,
		newID: idgen.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories returns the inventory and item repositories backed by s.
func (s *Store) Repositories() domain.Repositories {
	return domain.Repositories{Inventories: inventoryRepo{s}, Items: itemRepo{s}}
}

func (s *Store) stamp() time.Time {
	return s.nowFn().UTC()
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Inventories: make(map[string]domain.Inventory, len(s.state.inventories)),
		Items:       make(map[string]domain.Item, len(s.state.items)),
	}
	for k, v := range s.state.inventories {
		out.Inventories[k] = v.Clone()
	}
	for k, v := range s.state.items {
		out.Items[k] = v.Clone()
	}
	return out
}

// ImportState replaces the store state with the provided snapshot. Items whose
// inventory is missing from the snapshot are dropped.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for k, v := range snapshot.Inventories {
		state.inventories[k] = v.Clone()
	}
	for k, v := range snapshot.Items {
		if _, ok := state.inventories[v.InventoryID]; !ok {
			continue
		}
		state.items[k] = v.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func foreignKeyError(op, inventoryID string) error {
	return &persistence.StorageError{Op: op, Query: "inventory_id=" + inventoryID, Err: ErrForeignKey}
}

func sortInventories(list []domain.Inventory) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}

func sortItems(list []domain.Item) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}

func containsFold(haystack *string, needle string) bool {
	if haystack == nil {
		return needle == ""
	}
	return strings.Contains(strings.ToLower(*haystack), needle)
}

// clearable applies an optional text update: nil keeps, "" clears.
func clearable(current *string, update *string) *string {
	if update == nil {
		return current
	}
	if *update == "" {
		return nil
	}
	v := *update
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) Create(_ context.Context, in domain.CreateInventory) (domain.Inventory, error) {
	now := r.s.stamp()
	inv := domain.Inventory{
		ID:          r.s.newID(),
		Name:        in.Name,
		Description: nonEmpty(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.inventories[inv.ID] = inv
	return inv.Clone(), nil
}

func (r inventoryRepo) Get(_ context.Context, id string) (domain.Inventory, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.state.inventories[id]
	if !ok {
		return domain.Inventory{}, false, nil
	}
	return inv.Clone(), true, nil
}

func (r inventoryRepo) List(context.Context) ([]domain.Inventory, error) {
	return r.filter(func(domain.Inventory) bool { return true }), nil
}

func (r inventoryRepo) Search(_ context.Context, query string) ([]domain.Inventory, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.filter(func(inv domain.Inventory) bool {
		return strings.Contains(strings.ToLower(inv.Name), q) || containsFold(inv.Description, q)
	}), nil
}

func (r inventoryRepo) filter(keep func(domain.Inventory) bool) []domain.Inventory {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Inventory, 0, len(r.s.state.inventories))
	for _, inv := range r.s.state.inventories {
		if keep(inv) {
			out = append(out, inv.Clone())
		}
	}
	sortInventories(out)
	return out
}

func (r inventoryRepo) Update(_ context.Context, id string, in domain.UpdateInventory) (domain.Inventory, bool, error) {
	now := r.s.stamp()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.state.inventories[id]
	if !ok {
		return domain.Inventory{}, false, nil
	}
	if in.Name != nil {
		inv.Name = *in.Name
	}
	inv.Description = clearable(inv.Description, in.Description)
	inv.UpdatedAt = now
	r.s.state.inventories[id] = inv
	return inv.Clone(), true, nil
}

func (r inventoryRepo) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.inventories[id]; !ok {
		return false, nil
	}
	delete(r.s.state.inventories, id)
	for itemID, item := range r.s.state.items {
		if item.InventoryID == id {
			delete(r.s.state.items, itemID)
		}
	}
	return true, nil
}

func (r inventoryRepo) Exists(_ context.Context, id string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.state.inventories[id]
	return ok, nil
}

func (r inventoryRepo) Count(context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.state.inventories), nil
}

type itemRepo struct{ s *Store }

func (r itemRepo) Create(_ context.Context, in domain.CreateItem) (domain.Item, error) {
	now := r.s.stamp()
	item := domain.Item{
		ID:          r.s.newID(),
		InventoryID: in.InventoryID,
		Name:        in.Name,
		Description: nonEmpty(in.Description),
		Quantity:    in.Quantity,
		Category:    nonEmpty(in.Category),
		Location:    nonEmpty(in.Location),
		Barcode:     nonEmpty(in.Barcode),
		EntryDate:   now,
		UpdatedAt:   now,
	}
	if in.Price != nil {
		item.Price = domain.Ptr(*in.Price)
	}
	if in.ExpirationDate != nil {
		item.ExpirationDate = domain.Ptr(in.ExpirationDate.UTC())
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.inventories[item.InventoryID]; !ok {
		return domain.Item{}, foreignKeyError("exec", item.InventoryID)
	}
	r.s.state.items[item.ID] = item
	return item.Clone(), nil
}

func (r itemRepo) Get(_ context.Context, id string) (domain.Item, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.state.items[id]
	if !ok {
		return domain.Item{}, false, nil
	}
	return item.Clone(), true, nil
}

func (r itemRepo) ListByInventory(_ context.Context, inventoryID string) ([]domain.Item, error) {
	return r.filter(func(item domain.Item) bool { return item.InventoryID == inventoryID }), nil
}

func (r itemRepo) Search(_ context.Context, inventoryID, query string) ([]domain.Item, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.filter(func(item domain.Item) bool {
		if item.InventoryID != inventoryID {
			return false
		}
		return strings.Contains(strings.ToLower(item.Name), q) || containsFold(item.Description, q)
	}), nil
}

func (r itemRepo) FindByBarcode(_ context.Context, barcode string) (domain.Item, bool, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Item{}, false, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		best  domain.Item
		found bool
	)
	for _, item := range r.s.state.items {
		if item.Barcode == nil || *item.Barcode != barcode {
			continue
		}
		if !found || item.EntryDate.Before(best.EntryDate) ||
			(item.EntryDate.Equal(best.EntryDate) && item.ID < best.ID) {
			best, found = item, true
		}
	}
	if !found {
		return domain.Item{}, false, nil
	}
	return best.Clone(), true, nil
}

func (r itemRepo) filter(keep func(domain.Item) bool) []domain.Item {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Item{}
	for _, item := range r.s.state.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	sortItems(out)
	return out
}

func (r itemRepo) Update(_ context.Context, id string, in domain.UpdateItem) (domain.Item, bool, error) {
	now := r.s.stamp()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.state.items[id]
	if !ok {
		return domain.Item{}, false, nil
	}
	if in.InventoryID != nil {
		if _, ok := r.s.state.inventories[*in.InventoryID]; !ok {
			return domain.Item{}, false, foreignKeyError("exec", *in.InventoryID)
		}
		item.InventoryID = *in.InventoryID
	}
	if in.Name != nil {
		item.Name = *in.Name
	}
	if in.Quantity != nil {
		item.Quantity = *in.Quantity
	}
	switch {
	case in.ClearPrice:
		item.Price = nil
	case in.Price != nil:
		item.Price = domain.Ptr(*in.Price)
	}
	switch {
	case in.ClearExpirationDate:
		item.ExpirationDate = nil
	case in.ExpirationDate != nil:
		item.ExpirationDate = domain.Ptr(in.ExpirationDate.UTC())
	}
	item.Description = clearable(item.Description, in.Description)
	item.Category = clearable(item.Category, in.Category)
	item.Location = clearable(item.Location, in.Location)
	item.Barcode = clearable(item.Barcode, in.Barcode)
	item.UpdatedAt = now
	r.s.state.items[id] = item
	return item.Clone(), true, nil
}

func (r itemRepo) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.items[id]; !ok {
		return false, nil
	}
	delete(r.s.state.items, id)
	return true, nil
}

func (r itemRepo) CountByInventory(_ context.Context, inventoryID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, item := range r.s.state.items {
		if item.InventoryID == inventoryID {
			n++
		}
	}
	return n, nil
}
