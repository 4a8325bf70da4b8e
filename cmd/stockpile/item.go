package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"stockpile/pkg/domain"
)

// itemFlags binds the editable item fields to a flag set.
type itemFlags struct {
	inventory, name, description string
	category, location, barcode  string
	expires                      string
	quantity                     int
	price                        float64
}

func (f *itemFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.inventory, "inventory", "", "inventory id")
	fs.StringVar(&f.name, "name", "", "item name")
	fs.StringVar(&f.description, "description", "", "description")
	fs.IntVar(&f.quantity, "quantity", 0, "quantity on hand")
	fs.Float64Var(&f.price, "price", 0, "unit price")
	fs.StringVar(&f.category, "category", "", "category")
	fs.StringVar(&f.location, "location", "", "storage location")
	fs.StringVar(&f.barcode, "barcode", "", "barcode")
	fs.StringVar(&f.expires, "expires", "", "expiration date, YYYY-MM-DD or RFC 3339")
}

func runItem(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("item: expected list, create, update, delete, search or barcode")
	}
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		invID, err := positional("item list", args, "<inventory-id>")
		if err != nil {
			return err
		}
		if err := a.store.LoadItemsForInventory(ctx, invID); err != nil {
			return err
		}
		return printItems(a, a.store.ItemsForInventory(invID))
	case "create":
		var f itemFlags
		fs := flag.NewFlagSet("create", flag.ContinueOnError)
		f.bind(fs)
		set, err := parseFlags("item create", fs, args)
		if err != nil {
			return err
		}
		in := domain.CreateItem{
			InventoryID: f.inventory,
			Name:        f.name,
			Quantity:    f.quantity,
			Description: optional(set, "description", f.description),
			Category:    optional(set, "category", f.category),
			Location:    optional(set, "location", f.location),
			Barcode:     optional(set, "barcode", f.barcode),
		}
		if set["price"] {
			in.Price = &f.price
		}
		if set["expires"] {
			if in.ExpirationDate, err = parseDate(f.expires); err != nil {
				return err
			}
		}
		item, err := a.store.CreateItem(ctx, in)
		if err != nil {
			return err
		}
		return printItem(a, item)
	case "update":
		if len(args) == 0 {
			return usagef("item update: expected <id>")
		}
		id := args[0]
		var f itemFlags
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		f.bind(fs)
		clearPrice := fs.Bool("clear-price", false, "remove the price")
		clearExpires := fs.Bool("clear-expires", false, "remove the expiration date")
		set, err := parseFlags("item update", fs, args[1:])
		if err != nil {
			return err
		}
		in := domain.UpdateItem{
			InventoryID:         optional(set, "inventory", f.inventory),
			Name:                optional(set, "name", f.name),
			Description:         optional(set, "description", f.description),
			Category:            optional(set, "category", f.category),
			Location:            optional(set, "location", f.location),
			Barcode:             optional(set, "barcode", f.barcode),
			ClearPrice:          *clearPrice,
			ClearExpirationDate: *clearExpires,
		}
		if set["quantity"] {
			in.Quantity = &f.quantity
		}
		if set["price"] {
			in.Price = &f.price
		}
		if set["expires"] {
			if in.ExpirationDate, err = parseDate(f.expires); err != nil {
				return err
			}
		}
		item, ok, err := a.store.UpdateItem(ctx, id, in)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item %s: %w", id, errNotFound)
		}
		return printItem(a, item)
	case "delete":
		id, err := positional("item delete", args, "<id>")
		if err != nil {
			return err
		}
		removed, err := a.store.DeleteItem(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("item %s: %w", id, errNotFound)
		}
		return a.out.emit(map[string]any{"deleted": id}, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "deleted item %s\n", id)
		})
	case "search":
		if len(args) == 0 {
			return usagef("item search: expected <inventory-id> <query>")
		}
		list, err := a.store.SearchItems(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printItems(a, list)
	case "barcode":
		code, err := positional("item barcode", args, "<code>")
		if err != nil {
			return err
		}
		item, ok, err := a.store.FindItemByBarcode(ctx, code)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("barcode %s: %w", code, errNotFound)
		}
		return printItem(a, item)
	default:
		return usagef("item: unknown subcommand %q", sub)
	}
}

func parseDate(s string) (*time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, usagef("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
}

func printItem(a *app, item domain.Item) error {
	return a.out.emit(item, func(w io.Writer) {
		writeItems(w, []domain.Item{item})
	})
}

func printItems(a *app, list []domain.Item) error {
	if list == nil {
		list = []domain.Item{}
	}
	return a.out.emit(list, func(w io.Writer) {
		writeItems(w, list)
	})
}

func writeItems(w io.Writer, list []domain.Item) {
	_, _ = fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE\tLOCATION\tBARCODE\tEXPIRES")
	for _, it := range list {
		price, expires := "-", "-"
		if it.Price != nil {
			price = strconv.FormatFloat(*it.Price, 'f', 2, 64)
		}
		if it.ExpirationDate != nil {
			expires = it.ExpirationDate.Format(time.DateOnly)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			it.ID, it.Name, it.Quantity, price, deref(it.Location), deref(it.Barcode), expires)
	}
}
