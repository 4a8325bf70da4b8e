package sqlrepo

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"stockpile/internal/idgen"
	"stockpile/internal/infra/persistence/sqlite"
	"stockpile/internal/migrate"
	"stockpile/internal/persistence"
	"stockpile/pkg/domain"
)

// tickingClock advances by one millisecond on every read.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestRepos(t *testing.T) (domain.Repositories, *persistence.Conn) {
	t.Helper()
	ctx := context.Background()
	conn := sqlite.NewConn(filepath.Join(t.TempDir(), "repo.db"), nil)
	t.Cleanup(func() { _ = conn.Close() })
	ms, err := migrate.Builtin()
	if err != nil {
		t.Fatalf("builtin migrations: %v", err)
	}
	runner, err := migrate.NewRunner(conn, ms)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if _, err := runner.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &tickingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(conn, WithClock(clock.Now)), conn
}

func mustInventory(t *testing.T, repos domain.Repositories, name string) domain.Inventory {
	t.Helper()
	inv, err := repos.Inventories.Create(context.Background(), domain.CreateInventory{Name: name})
	if err != nil {
		t.Fatalf("create inventory %s: %v", name, err)
	}
	return inv
}

func mustItem(t *testing.T, repos domain.Repositories, in domain.CreateItem) domain.Item {
	t.Helper()
	item, err := repos.Items.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create item %s: %v", in.Name, err)
	}
	return item
}

func TestInventoryCreateGarage(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	inv := mustInventory(t, repos, "Garage")
	if !idgen.Valid(inv.ID) {
		t.Fatalf("invalid id %q", inv.ID)
	}
	if inv.Name != "Garage" || inv.Description != nil {
		t.Fatalf("unexpected inventory %+v", inv)
	}
	if !inv.CreatedAt.Equal(inv.UpdatedAt) {
		t.Fatalf("createdAt %v != updatedAt %v", inv.CreatedAt, inv.UpdatedAt)
	}
	got, ok, err := repos.Inventories.Get(ctx, inv.ID)
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, inv) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", inv, got)
	}
	other := mustInventory(t, repos, "Attic")
	if other.ID == inv.ID {
		t.Fatalf("duplicate ids")
	}
	if n, err := repos.Inventories.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
	list, err := repos.Inventories.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Attic" || list[1].Name != "Garage" {
		t.Fatalf("expected name ordering, got %+v", list)
	}
	if ok, err := repos.Inventories.Exists(ctx, inv.ID); err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if _, ok, err := repos.Inventories.Get(ctx, "missing-id"); err != nil || ok {
		t.Fatalf("expected absent without error, got %v, %v", ok, err)
	}
}

func TestInventoryUpdate(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	inv, err := repos.Inventories.Create(ctx, domain.CreateInventory{Name: "Garage", Description: domain.Ptr("tools")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	touched, ok, err := repos.Inventories.Update(ctx, inv.ID, domain.UpdateInventory{})
	if err != nil || !ok {
		t.Fatalf("empty update: %v, %v", ok, err)
	}
	if !touched.UpdatedAt.After(inv.UpdatedAt) {
		t.Fatalf("empty update should refresh updatedAt")
	}
	touched.UpdatedAt = inv.UpdatedAt
	if !reflect.DeepEqual(touched, inv) {
		t.Fatalf("empty update changed fields:\nwant %+v\ngot  %+v", inv, touched)
	}

	renamed, ok, err := repos.Inventories.Update(ctx, inv.ID, domain.UpdateInventory{Name: domain.Ptr("Shed")})
	if err != nil || !ok {
		t.Fatalf("rename: %v, %v", ok, err)
	}
	if renamed.Name != "Shed" || renamed.Description == nil || *renamed.Description != "tools" {
		t.Fatalf("unexpected rename result %+v", renamed)
	}
	if !renamed.CreatedAt.Equal(inv.CreatedAt) {
		t.Fatalf("createdAt changed")
	}

	cleared, _, err := repos.Inventories.Update(ctx, inv.ID, domain.UpdateInventory{Description: domain.Ptr("")})
	if err != nil || cleared.Description != nil {
		t.Fatalf("expected description cleared, got %+v, %v", cleared, err)
	}

	if _, ok, err := repos.Inventories.Update(ctx, "missing-id", domain.UpdateInventory{Name: domain.Ptr("x")}); err != nil || ok {
		t.Fatalf("update missing = %v, %v", ok, err)
	}
}

func TestInventoryDeleteCascadesToItems(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	attic := mustInventory(t, repos, "Attic")
	drill := mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Drill", Quantity: 1})
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Saw", Quantity: 1})
	lamp := mustItem(t, repos, domain.CreateItem{InventoryID: attic.ID, Name: "Lamp", Quantity: 1})

	removed, err := repos.Inventories.Delete(ctx, garage.ID)
	if err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	if n, err := repos.Items.CountByInventory(ctx, garage.ID); err != nil || n != 0 {
		t.Fatalf("expected cascade, %d items remain (%v)", n, err)
	}
	if _, ok, _ := repos.Items.Get(ctx, drill.ID); ok {
		t.Fatalf("drill survived cascade")
	}
	if _, ok, _ := repos.Items.Get(ctx, lamp.ID); !ok {
		t.Fatalf("other inventory's item removed")
	}
	if removed, err := repos.Inventories.Delete(ctx, garage.ID); err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
	if ok, _ := repos.Inventories.Exists(ctx, garage.ID); ok {
		t.Fatalf("deleted inventory still exists")
	}
}

func TestItemDrillScenario(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	drill := mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Drill", Quantity: 1})
	if !drill.EntryDate.Equal(drill.UpdatedAt) {
		t.Fatalf("entryDate %v != updatedAt %v", drill.EntryDate, drill.UpdatedAt)
	}

	updated, ok, err := repos.Items.Update(ctx, drill.ID, domain.UpdateItem{Quantity: domain.Ptr(2)})
	if err != nil || !ok {
		t.Fatalf("update: %v, %v", ok, err)
	}
	if updated.Quantity != 2 || updated.Name != "Drill" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(drill.UpdatedAt) {
		t.Fatalf("updatedAt %v not after %v", updated.UpdatedAt, drill.UpdatedAt)
	}
	if !updated.EntryDate.Equal(drill.EntryDate) {
		t.Fatalf("entryDate changed")
	}
}

func TestItemRoundTripAllFields(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	expires := time.Date(2025, 6, 30, 12, 30, 0, 123456789, time.FixedZone("CEST", 2*3600))
	item := mustItem(t, repos, domain.CreateItem{
		InventoryID:    garage.ID,
		Name:           "Glue",
		Description:    domain.Ptr("two-part epoxy"),
		Quantity:       3,
		Price:          domain.Ptr(0.0),
		Category:       domain.Ptr("Adhesives"),
		Location:       domain.Ptr("Shelf 2"),
		Barcode:        domain.Ptr("4006381333931"),
		ExpirationDate: &expires,
	})
	got, ok, err := repos.Items.Get(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, item) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", item, got)
	}
	if got.Price == nil || *got.Price != 0 {
		t.Fatalf("zero price must survive, got %v", got.Price)
	}
	if !got.ExpirationDate.Equal(expires) {
		t.Fatalf("expiration instant changed: %v vs %v", got.ExpirationDate, expires)
	}

	bare := mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Rag"})
	got, _, err = repos.Items.Get(ctx, bare.ID)
	if err != nil {
		t.Fatalf("get bare: %v", err)
	}
	if got.Description != nil || got.Price != nil || got.Category != nil || got.Barcode != nil || got.ExpirationDate != nil {
		t.Fatalf("expected absent optionals, got %+v", got)
	}
}

func TestItemCreateRequiresInventory(t *testing.T) {
	repos, _ := newTestRepos(t)
	_, err := repos.Items.Create(context.Background(), domain.CreateItem{InventoryID: "missing-id", Name: "Orphan"})
	var se *persistence.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestItemUpdateClearsAndMoves(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	attic := mustInventory(t, repos, "Attic")
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	item := mustItem(t, repos, domain.CreateItem{
		InventoryID: garage.ID, Name: "Paint", Quantity: 1,
		Price: domain.Ptr(12.5), Category: domain.Ptr("Supplies"), ExpirationDate: &expires,
	})

	updated, ok, err := repos.Items.Update(ctx, item.ID, domain.UpdateItem{
		InventoryID:         domain.Ptr(attic.ID),
		ClearPrice:          true,
		Category:            domain.Ptr(""),
		ClearExpirationDate: true,
	})
	if err != nil || !ok {
		t.Fatalf("update: %v, %v", ok, err)
	}
	if updated.InventoryID != attic.ID || updated.Price != nil || updated.Category != nil || updated.ExpirationDate != nil {
		t.Fatalf("unexpected update result %+v", updated)
	}

	_, _, err = repos.Items.Update(ctx, item.ID, domain.UpdateItem{InventoryID: domain.Ptr("missing-id")})
	var se *persistence.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected foreign key failure, got %v", err)
	}

	if _, ok, err := repos.Items.Update(ctx, "missing-id", domain.UpdateItem{}); err != nil || ok {
		t.Fatalf("update missing = %v, %v", ok, err)
	}
	if removed, err := repos.Items.Delete(ctx, item.ID); err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	if removed, err := repos.Items.Delete(ctx, item.ID); err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
}

func TestSearch(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	if _, err := repos.Inventories.Create(ctx, domain.CreateInventory{Name: "Kitchen", Description: domain.Ptr("pots and PANS")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	attic := mustInventory(t, repos, "Attic")
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Hammer"})
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "hand saw"})
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Cleaner", Description: domain.Ptr("100% pure")})
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Cleaner_x"})
	mustItem(t, repos, domain.CreateItem{InventoryID: attic.ID, Name: "Handbag"})

	invs, err := repos.Inventories.Search(ctx, "pans")
	if err != nil || len(invs) != 1 || invs[0].Name != "Kitchen" {
		t.Fatalf("inventory search = %+v, %v", invs, err)
	}

	cellar := mustInventory(t, repos, "Äpfelkeller")
	mustItem(t, repos, domain.CreateItem{InventoryID: cellar.ID, Name: "Öl"})
	invs, err = repos.Inventories.Search(ctx, "Äpfelkeller")
	if err != nil || len(invs) != 1 || invs[0].ID != cellar.ID {
		t.Fatalf("exact non-ASCII inventory search = %+v, %v", invs, err)
	}
	if items, err := repos.Items.Search(ctx, cellar.ID, "Öl"); err != nil || len(items) != 1 {
		t.Fatalf("exact non-ASCII item search = %+v, %v", items, err)
	}

	cases := []struct {
		query string
		want  []string
	}{
		{"ha", []string{"Hammer", "hand saw"}},
		{"HAND", []string{"hand saw"}},
		{"%", []string{"Cleaner"}},
		{"_", []string{"Cleaner_x"}},
		{"", []string{"Cleaner", "Cleaner_x", "Hammer", "hand saw"}},
		{"nothing", nil},
	}
	for _, tc := range cases {
		items, err := repos.Items.Search(ctx, garage.ID, tc.query)
		if err != nil {
			t.Fatalf("search %q: %v", tc.query, err)
		}
		var names []string
		for _, it := range items {
			names = append(names, it.Name)
		}
		if !reflect.DeepEqual(names, tc.want) {
			t.Errorf("search %q = %v, want %v", tc.query, names, tc.want)
		}
	}
}

func TestFindByBarcode(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()
	garage := mustInventory(t, repos, "Garage")
	first := mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Tape", Barcode: domain.Ptr("123")})
	mustItem(t, repos, domain.CreateItem{InventoryID: garage.ID, Name: "Tape (spare)", Barcode: domain.Ptr("123")})

	got, ok, err := repos.Items.FindByBarcode(ctx, " 123 ")
	if err != nil || !ok || got.ID != first.ID {
		t.Fatalf("find = %+v, %v, %v", got, ok, err)
	}
	if _, ok, err := repos.Items.FindByBarcode(ctx, "999"); err != nil || ok {
		t.Fatalf("unknown barcode = %v, %v", ok, err)
	}
	if _, ok, err := repos.Items.FindByBarcode(ctx, "  "); err != nil || ok {
		t.Fatalf("blank barcode = %v, %v", ok, err)
	}
}

func TestClosedConnSurfacesErrClosed(t *testing.T) {
	repos, conn := newTestRepos(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := repos.Inventories.List(context.Background())
	if !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	cases := map[string]string{
		"Drill":  "%Drill%",
		" 50% ":  `%50\%%`,
		"a_b":    `%a\_b%`,
		`c:\tmp`: `%c:\\tmp%`,
	}
	for in, want := range cases {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
