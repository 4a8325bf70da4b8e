// Package domain defines the inventory and item entities tracked by stockpile,
// the create/update payloads that mutate them, and the repository contracts
// persistence backends implement.
package domain

import "time"

// EntityType identifies the kind of record stored by a repository.
type EntityType string

const (
	// EntityInventory identifies an inventory record.
	EntityInventory EntityType = "inventory"
	// EntityItem identifies an item record.
	EntityItem EntityType = "item"
)

// Inventory is a named collection owned by the user. Deleting an inventory
// removes every item that belongs to it.
type Inventory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is a tracked object that belongs to exactly one inventory.
type Item struct {
	ID             string     `json:"id"`
	InventoryID    string     `json:"inventory_id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	Quantity       int        `json:"quantity"`
	Price          *float64   `json:"price,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Location       *string    `json:"location,omitempty"`
	Barcode        *string    `json:"barcode,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	EntryDate      time.Time  `json:"entry_date"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateInventory carries the caller-supplied fields of a new inventory.
// ID and timestamps are assigned by the repository.
type CreateInventory struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateInventory is a partial inventory update. Nil fields are left
// untouched; a Description pointing at an empty string clears it.
type UpdateInventory struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// IsEmpty reports whether the update supplies no fields.
func (u UpdateInventory) IsEmpty() bool {
	return u.Name == nil && u.Description == nil
}

// CreateItem carries the caller-supplied fields of a new item.
type CreateItem struct {
	InventoryID    string     `json:"inventory_id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	Quantity       int        `json:"quantity"`
	Price          *float64   `json:"price,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Location       *string    `json:"location,omitempty"`
	Barcode        *string    `json:"barcode,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// UpdateItem is a partial item update. Nil fields are left untouched. Optional
// text fields pointing at an empty string are cleared; ClearPrice and
// ClearExpirationDate remove the corresponding values.
type UpdateItem struct {
	InventoryID         *string    `json:"inventory_id,omitempty"`
	Name                *string    `json:"name,omitempty"`
	Description         *string    `json:"description,omitempty"`
	Quantity            *int       `json:"quantity,omitempty"`
	Price               *float64   `json:"price,omitempty"`
	ClearPrice          bool       `json:"clear_price,omitempty"`
	Category            *string    `json:"category,omitempty"`
	Location            *string    `json:"location,omitempty"`
	Barcode             *string    `json:"barcode,omitempty"`
	ExpirationDate      *time.Time `json:"expiration_date,omitempty"`
	ClearExpirationDate bool       `json:"clear_expiration_date,omitempty"`
}

// IsEmpty reports whether the update supplies no fields.
func (u UpdateItem) IsEmpty() bool {
	return u.InventoryID == nil && u.Name == nil && u.Description == nil &&
		u.Quantity == nil && u.Price == nil && !u.ClearPrice &&
		u.Category == nil && u.Location == nil && u.Barcode == nil &&
		u.ExpirationDate == nil && !u.ClearExpirationDate
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a copy of the inventory that shares no pointers with the receiver.
func (i Inventory) Clone() Inventory {
	i.Description = clonePtr(i.Description)
	return i
}

// Clone returns a copy of the item that shares no pointers with the receiver.
func (i Item) Clone() Item {
	i.Description = clonePtr(i.Description)
	i.Price = clonePtr(i.Price)
	i.Category = clonePtr(i.Category)
	i.Location = clonePtr(i.Location)
	i.Barcode = clonePtr(i.Barcode)
	i.ExpirationDate = clonePtr(i.ExpirationDate)
	return i
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
