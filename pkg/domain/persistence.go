package domain

import "context"

// InventoryRepository persists inventories. Lookups report absence through
// the boolean result rather than an error.
type InventoryRepository interface {
	Create(ctx context.Context, in CreateInventory) (Inventory, error)
	Get(ctx context.Context, id string) (Inventory, bool, error)
	// List returns every inventory ordered by name.
	List(ctx context.Context) ([]Inventory, error)
	// Update applies the supplied fields and always refreshes UpdatedAt.
	Update(ctx context.Context, id string, in UpdateInventory) (Inventory, bool, error)
	// Delete removes the inventory and, through the storage cascade, its items.
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	// Search matches name or description case-insensitively, ordered by name.
	Search(ctx context.Context, query string) ([]Inventory, error)
}

// ItemRepository persists items.
type ItemRepository interface {
	Create(ctx context.Context, in CreateItem) (Item, error)
	Get(ctx context.Context, id string) (Item, bool, error)
	// ListByInventory returns the inventory's items ordered by name.
	ListByInventory(ctx context.Context, inventoryID string) ([]Item, error)
	Update(ctx context.Context, id string, in UpdateItem) (Item, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	CountByInventory(ctx context.Context, inventoryID string) (int, error)
	Search(ctx context.Context, inventoryID, query string) ([]Item, error)
	FindByBarcode(ctx context.Context, barcode string) (Item, bool, error)
}

// Repositories bundles the repositories of one storage backend.
type Repositories struct {
	Inventories InventoryRepository
	Items       ItemRepository
}
