package core

import "stockpile/pkg/domain"

// State is a point-in-time view of the store.
type State struct {
	Inventories        []domain.Inventory `json:"inventories"`
	Items              []domain.Item      `json:"items"`
	CurrentInventoryID string             `json:"current_inventory_id,omitempty"`
	LoadingInventories bool               `json:"loading_inventories"`
	LoadingItems       bool               `json:"loading_items"`
	Initialized        bool               `json:"initialized"`
}

func (s State) clone() State {
	out := s
	out.Inventories = make([]domain.Inventory, len(s.Inventories))
	for i, inv := range s.Inventories {
		out.Inventories[i] = inv.Clone()
	}
	out.Items = make([]domain.Item, len(s.Items))
	for i, it := range s.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Inventories returns the loaded inventories.
func (s *Store) Inventories() []domain.Inventory {
	return s.Snapshot().Inventories
}

// Items returns every loaded item across inventories.
func (s *Store) Items() []domain.Item {
	return s.Snapshot().Items
}

// CurrentInventory returns the selected inventory if it is loaded.
func (s *Store) CurrentInventory() (domain.Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentInventoryID == "" {
		return domain.Inventory{}, false
	}
	return s.inventoryLocked(s.state.CurrentInventoryID)
}

// CurrentInventoryItems returns the loaded items of the selected inventory.
func (s *Store) CurrentInventoryItems() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentInventoryID == "" {
		return []domain.Item{}
	}
	return s.itemsLocked(s.state.CurrentInventoryID)
}

// InventoryByID looks up a loaded inventory.
func (s *Store) InventoryByID(id string) (domain.Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventoryLocked(id)
}

// ItemByID looks up a loaded item.
func (s *Store) ItemByID(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexByID(s.state.Items, id, itemKey); i >= 0 {
		return s.state.Items[i].Clone(), true
	}
	return domain.Item{}, false
}

// ItemsForInventory returns the loaded items of one inventory.
func (s *Store) ItemsForInventory(inventoryID string) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsLocked(inventoryID)
}

// TotalInventories counts the loaded inventories.
func (s *Store) TotalInventories() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Inventories)
}

// TotalItems counts the loaded items across inventories.
func (s *Store) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Items)
}

// InventoryItemCount counts the loaded items of one inventory.
func (s *Store) InventoryItemCount(inventoryID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.state.Items {
		if it.InventoryID == inventoryID {
			n++
		}
	}
	return n
}

func (s *Store) inventoryLocked(id string) (domain.Inventory, bool) {
	if i := indexByID(s.state.Inventories, id, inventoryKey); i >= 0 {
		return s.state.Inventories[i].Clone(), true
	}
	return domain.Inventory{}, false
}

func (s *Store) itemsLocked(inventoryID string) []domain.Item {
	out := []domain.Item{}
	for _, it := range s.state.Items {
		if it.InventoryID == inventoryID {
			out = append(out, it.Clone())
		}
	}
	return out
}
