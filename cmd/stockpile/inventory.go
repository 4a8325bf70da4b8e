package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"stockpile/pkg/domain"
)

type inventoryView struct {
	domain.Inventory
	Items     []domain.Item `json:"items"`
	ItemCount int           `json:"item_count"`
}

func runInventory(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("inventory: expected list, show, create, update, delete or search")
	}
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		if err := a.store.LoadInventories(ctx); err != nil {
			return err
		}
		return printInventories(a, a.store.Inventories())
	case "show":
		id, err := positional("inventory show", args, "<id>")
		if err != nil {
			return err
		}
		return showInventory(ctx, a, id)
	case "create":
		fs := flag.NewFlagSet("create", flag.ContinueOnError)
		name := fs.String("name", "", "inventory name")
		desc := fs.String("description", "", "optional description")
		set, err := parseFlags("inventory create", fs, args)
		if err != nil {
			return err
		}
		inv, err := a.store.CreateInventory(ctx, domain.CreateInventory{
			Name:        *name,
			Description: optional(set, "description", *desc),
		})
		if err != nil {
			return err
		}
		return printInventory(a, inv)
	case "update":
		if len(args) == 0 {
			return usagef("inventory update: expected <id>")
		}
		id := args[0]
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		name := fs.String("name", "", "new name")
		desc := fs.String("description", "", "new description, empty clears it")
		set, err := parseFlags("inventory update", fs, args[1:])
		if err != nil {
			return err
		}
		inv, ok, err := a.store.UpdateInventory(ctx, id, domain.UpdateInventory{
			Name:        optional(set, "name", *name),
			Description: optional(set, "description", *desc),
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("inventory %s: %w", id, errNotFound)
		}
		return printInventory(a, inv)
	case "delete":
		id, err := positional("inventory delete", args, "<id>")
		if err != nil {
			return err
		}
		removed, err := a.store.DeleteInventory(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("inventory %s: %w", id, errNotFound)
		}
		return a.out.emit(map[string]any{"deleted": id}, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "deleted inventory %s\n", id)
		})
	case "search":
		list, err := a.store.SearchInventories(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printInventories(a, list)
	default:
		return usagef("inventory: unknown subcommand %q", sub)
	}
}

// showInventory selects the inventory and prints it with its loaded items.
func showInventory(ctx context.Context, a *app, id string) error {
	if err := a.store.LoadInventories(ctx); err != nil {
		return err
	}
	if _, ok := a.store.InventoryByID(id); !ok {
		return fmt.Errorf("inventory %s: %w", id, errNotFound)
	}
	if err := a.store.LoadItemsForInventory(ctx, id); err != nil {
		return err
	}
	a.store.SetCurrentInventory(id)
	inv, _ := a.store.CurrentInventory()
	view := inventoryView{
		Inventory: inv,
		Items:     a.store.CurrentInventoryItems(),
		ItemCount: a.store.InventoryItemCount(id),
	}
	if view.Items == nil {
		view.Items = []domain.Item{}
	}
	return a.out.emit(view, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", inv.ID, inv.Name)
		if inv.Description != nil {
			_, _ = fmt.Fprintf(w, "\t%s\n", *inv.Description)
		}
		_, _ = fmt.Fprintf(w, "items: %d\n", view.ItemCount)
		writeItems(w, view.Items)
	})
}

func printInventory(a *app, inv domain.Inventory) error {
	return a.out.emit(inv, func(w io.Writer) {
		writeInventories(w, []domain.Inventory{inv})
	})
}

func printInventories(a *app, list []domain.Inventory) error {
	if list == nil {
		list = []domain.Inventory{}
	}
	return a.out.emit(list, func(w io.Writer) {
		writeInventories(w, list)
	})
}

func writeInventories(w io.Writer, list []domain.Inventory) {
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tUPDATED")
	for _, inv := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inv.ID, inv.Name, deref(inv.Description), inv.UpdatedAt.Local().Format(time.DateTime))
	}
}

func positional(name string, args []string, want string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", usagef("%s: expected %s", name, want)
	}
	return args[0], nil
}

func deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}
