package sqlrepo

import (
	"context"
	"database/sql"

	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

const inventoryColumns = `id, name, description, created_at, updated_at`

var _ domain.InventoryRepository = (*InventoryRepository)(nil)

// InventoryRepository persists inventories in the inventories table.
type InventoryRepository struct {
	conn *persistence.Conn
	opts options
}

// NewInventoryRepository binds an inventory repository to conn.
func NewInventoryRepository(conn *persistence.Conn, opts ...Option) *InventoryRepository {
	return &InventoryRepository{conn: conn, opts: buildOptions(opts)}
}

type inventoryRow struct {
	ID          string
	Name        string
	Description sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

func (r *inventoryRow) scan(s persistence.Scanner) error {
	return s.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
}

func (r inventoryRow) toDomain() (domain.Inventory, error) {
	created, err := parseTime("created_at", r.CreatedAt)
	if err != nil {
		return domain.Inventory{}, err
	}
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return domain.Inventory{}, err
	}
	return domain.Inventory{
		ID:          r.ID,
		Name:        r.Name,
		Description: textPtr(r.Description),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// Create inserts a new inventory with a fresh ID and matching timestamps.
func (r *InventoryRepository) Create(ctx context.Context, in domain.CreateInventory) (domain.Inventory, error) {
	now := r.opts.stamp()
	inv := domain.Inventory{
		ID:          r.opts.newID(),
		Name:        in.Name,
		Description: nonEmpty(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.conn.Exec(ctx,
		`INSERT INTO inventories (`+inventoryColumns+`) VALUES (?, ?, ?, ?, ?)`,
		inv.ID, inv.Name, nullableText(inv.Description), formatTime(now), formatTime(now))
	if err != nil {
		return domain.Inventory{}, err
	}
	return inv, nil
}

// Get returns the inventory with id.
func (r *InventoryRepository) Get(ctx context.Context, id string) (domain.Inventory, bool, error) {
	var row inventoryRow
	found, err := r.conn.First(ctx, row.scan, `SELECT `+inventoryColumns+` FROM inventories WHERE id = ?`, id)
	if err != nil || !found {
		return domain.Inventory{}, false, err
	}
	inv, err := row.toDomain()
	if err != nil {
		return domain.Inventory{}, false, err
	}
	return inv, true, nil
}

// List returns every inventory ordered by name.
func (r *InventoryRepository) List(ctx context.Context) ([]domain.Inventory, error) {
	return r.query(ctx, `SELECT `+inventoryColumns+` FROM inventories ORDER BY name ASC, id ASC`)
}

// Search matches name or description case-insensitively.
func (r *InventoryRepository) Search(ctx context.Context, query string) ([]domain.Inventory, error) {
	pattern := likePattern(query)
	return r.query(ctx, `SELECT `+inventoryColumns+` FROM inventories
		WHERE LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE LOWER(?) ESCAPE '\'
		ORDER BY name ASC, id ASC`, pattern, pattern)
}

func (r *InventoryRepository) query(ctx context.Context, query string, args ...any) ([]domain.Inventory, error) {
	out := []domain.Inventory{}
	err := r.conn.All(ctx, func(s persistence.Scanner) error {
		var row inventoryRow
		if err := row.scan(s); err != nil {
			return err
		}
		inv, err := row.toDomain()
		if err != nil {
			return err
		}
		out = append(out, inv)
		return nil
	}, query, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies the supplied fields. UpdatedAt is refreshed even when no
// field is supplied.
func (r *InventoryRepository) Update(ctx context.Context, id string, in domain.UpdateInventory) (domain.Inventory, bool, error) {
	var set setClause
	if in.Name != nil {
		set.add("name", *in.Name)
	}
	if in.Description != nil {
		set.add("description", nullableText(in.Description))
	}
	set.add("updated_at", formatTime(r.opts.stamp()))
	res, err := r.conn.Exec(ctx, `UPDATE inventories SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return domain.Inventory{}, false, err
	}
	if res.RowsAffected == 0 {
		return domain.Inventory{}, false, nil
	}
	return r.Get(ctx, id)
}

// Delete removes the inventory; its items go with it through ON DELETE CASCADE.
func (r *InventoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM inventories WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// Exists reports whether an inventory with id is stored.
func (r *InventoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if _, err := r.conn.First(ctx, countScan(&n), `SELECT COUNT(*) FROM inventories WHERE id = ?`, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of stored inventories.
func (r *InventoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if _, err := r.conn.First(ctx, countScan(&n), `SELECT COUNT(*) FROM inventories`); err != nil {
		return 0, err
	}
	return n, nil
}
