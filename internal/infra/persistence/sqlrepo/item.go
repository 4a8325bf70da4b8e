package sqlrepo

import (
	"context"
	"database/sql"
	"strings"

	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

const itemColumns = `id, inventory_id, name, description, quantity, price, category, location, barcode, expiration_date, entry_date, updated_at`

var _ domain.ItemRepository = (*ItemRepository)(nil)

// ItemRepository persists items in the items table.
type ItemRepository struct {
	conn *persistence.Conn
	opts options
}

// NewItemRepository binds an item repository to conn.
func NewItemRepository(conn *persistence.Conn, opts ...Option) *ItemRepository {
	return &ItemRepository{conn: conn, opts: buildOptions(opts)}
}

type itemRow struct {
	ID             string
	InventoryID    string
	Name           string
	Description    sql.NullString
	Quantity       int64
	Price          sql.NullFloat64
	Category       sql.NullString
	Location       sql.NullString
	Barcode        sql.NullString
	ExpirationDate sql.NullString
	EntryDate      string
	UpdatedAt      string
}

func (r *itemRow) scan(s persistence.Scanner) error {
	return s.Scan(&r.ID, &r.InventoryID, &r.Name, &r.Description, &r.Quantity, &r.Price,
		&r.Category, &r.Location, &r.Barcode, &r.ExpirationDate, &r.EntryDate, &r.UpdatedAt)
}

func (r itemRow) toDomain() (domain.Item, error) {
	entry, err := parseTime("entry_date", r.EntryDate)
	if err != nil {
		return domain.Item{}, err
	}
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return domain.Item{}, err
	}
	expires, err := parseNullTime("expiration_date", r.ExpirationDate)
	if err != nil {
		return domain.Item{}, err
	}
	return domain.Item{
		ID:             r.ID,
		InventoryID:    r.InventoryID,
		Name:           r.Name,
		Description:    textPtr(r.Description),
		Quantity:       int(r.Quantity),
		Price:          floatPtr(r.Price),
		Category:       textPtr(r.Category),
		Location:       textPtr(r.Location),
		Barcode:        textPtr(r.Barcode),
		ExpirationDate: expires,
		EntryDate:      entry,
		UpdatedAt:      updated,
	}, nil
}

// Create inserts a new item. The referenced inventory must exist; the
// foreign key violation surfaces as a *persistence.StorageError.
func (r *ItemRepository) Create(ctx context.Context, in domain.CreateItem) (domain.Item, error) {
	now := r.opts.stamp()
	item := domain.Item{
		ID:          r.opts.newID(),
		InventoryID: in.InventoryID,
		Name:        in.Name,
		Quantity:    in.Quantity,
		Price:       clone(in.Price),
		Description: nonEmpty(in.Description),
		Category:    nonEmpty(in.Category),
		Location:    nonEmpty(in.Location),
		Barcode:     nonEmpty(in.Barcode),
		EntryDate:   now,
		UpdatedAt:   now,
	}
	if in.ExpirationDate != nil {
		exp := in.ExpirationDate.UTC()
		item.ExpirationDate = &exp
	}
	_, err := r.conn.Exec(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.InventoryID, item.Name, nullableText(item.Description), item.Quantity,
		nullableFloat(item.Price), nullableText(item.Category), nullableText(item.Location),
		nullableText(item.Barcode), nullableTime(item.ExpirationDate), formatTime(now), formatTime(now))
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// Get returns the item with id.
func (r *ItemRepository) Get(ctx context.Context, id string) (domain.Item, bool, error) {
	return r.first(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
}

// ListByInventory returns the inventory's items ordered by name.
func (r *ItemRepository) ListByInventory(ctx context.Context, inventoryID string) ([]domain.Item, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM items WHERE inventory_id = ? ORDER BY name ASC, id ASC`, inventoryID)
}

// Search matches name or description within one inventory.
func (r *ItemRepository) Search(ctx context.Context, inventoryID, query string) ([]domain.Item, error) {
	pattern := likePattern(query)
	return r.query(ctx, `SELECT `+itemColumns+` FROM items
		WHERE inventory_id = ? AND (LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE LOWER(?) ESCAPE '\')
		ORDER BY name ASC, id ASC`, inventoryID, pattern, pattern)
}

// FindByBarcode returns the earliest entered item carrying barcode.
func (r *ItemRepository) FindByBarcode(ctx context.Context, barcode string) (domain.Item, bool, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Item{}, false, nil
	}
	return r.first(ctx, `SELECT `+itemColumns+` FROM items WHERE barcode = ? ORDER BY entry_date ASC, id ASC LIMIT 1`, barcode)
}

// Update applies the supplied fields and refreshes UpdatedAt.
func (r *ItemRepository) Update(ctx context.Context, id string, in domain.UpdateItem) (domain.Item, bool, error) {
	var set setClause
	if in.InventoryID != nil {
		set.add("inventory_id", *in.InventoryID)
	}
	if in.Name != nil {
		set.add("name", *in.Name)
	}
	if in.Description != nil {
		set.add("description", nullableText(in.Description))
	}
	if in.Quantity != nil {
		set.add("quantity", *in.Quantity)
	}
	switch {
	case in.ClearPrice:
		set.add("price", nil)
	case in.Price != nil:
		set.add("price", *in.Price)
	}
	if in.Category != nil {
		set.add("category", nullableText(in.Category))
	}
	if in.Location != nil {
		set.add("location", nullableText(in.Location))
	}
	if in.Barcode != nil {
		set.add("barcode", nullableText(in.Barcode))
	}
	switch {
	case in.ClearExpirationDate:
		set.add("expiration_date", nil)
	case in.ExpirationDate != nil:
		set.add("expiration_date", nullableTime(in.ExpirationDate))
	}
	set.add("updated_at", formatTime(r.opts.stamp()))
	res, err := r.conn.Exec(ctx, `UPDATE items SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return domain.Item{}, false, err
	}
	if res.RowsAffected == 0 {
		return domain.Item{}, false, nil
	}
	return r.Get(ctx, id)
}

// Delete removes the item with id.
func (r *ItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// CountByInventory returns the number of items in an inventory.
func (r *ItemRepository) CountByInventory(ctx context.Context, inventoryID string) (int, error) {
	var n int
	if _, err := r.conn.First(ctx, countScan(&n), `SELECT COUNT(*) FROM items WHERE inventory_id = ?`, inventoryID); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ItemRepository) first(ctx context.Context, query string, args ...any) (domain.Item, bool, error) {
	var row itemRow
	found, err := r.conn.First(ctx, row.scan, query, args...)
	if err != nil || !found {
		return domain.Item{}, false, err
	}
	item, err := row.toDomain()
	if err != nil {
		return domain.Item{}, false, err
	}
	return item, true, nil
}

func (r *ItemRepository) query(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	out := []domain.Item{}
	err := r.conn.All(ctx, func(s persistence.Scanner) error {
		var row itemRow
		if err := row.scan(s); err != nil {
			return err
		}
		item, err := row.toDomain()
		if err != nil {
			return err
		}
		out = append(out, item)
		return nil
	}, query, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
