// Package validation normalizes and checks inventory and item payloads.
//
// Each payload kind has a rule table: one rule per field that trims the value
// in place and reports a message when the value is unacceptable. Validators
// are pure; a failure returns *Errors listing every offending field.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stockpile/pkg/domain"
)

// Messages reported by the rule tables.
const (
	MsgIDRequired          = "ID is required"
	MsgInventoryName       = "Inventory name is required"
	MsgInventoryIDRequired = "Inventory ID is required"
	MsgItemName            = "Item name is required"
	MsgNegativeQuantity    = "Quantity cannot be negative"
	MsgNegativePrice       = "Price cannot be negative"
	MsgPriceNotFinite      = "Price must be a finite number"
	MsgPriceConflict       = "Price cannot be set and cleared at once"
	MsgExpirationConflict  = "Expiration date cannot be set and cleared at once"
	MsgTimestampRequired   = "Timestamp is required"
	MsgUpdatedBeforeCreate = "Updated timestamp precedes creation"
)

// FieldError ties a message to a field path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects the field errors of one failed validation.
type Errors struct {
	Entity domain.EntityType `json:"entity"`
	Fields []FieldError      `json:"fields"`
}

func (e *Errors) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Field returns the message recorded for field, if any.
func (e *Errors) Field(field string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message, true
		}
	}
	return "", false
}

// Map returns the errors keyed by field path.
func (e *Errors) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

type rule[T any] struct {
	field string
	check func(*T) string
}

func apply[T any](entity domain.EntityType, rules []rule[T], in T) (T, error) {
	errs := &Errors{Entity: entity}
	for _, r := range rules {
		if msg := r.check(&in); msg != "" {
			errs.Fields = append(errs.Fields, FieldError{Field: r.field, Message: msg})
		}
	}
	if len(errs.Fields) > 0 {
		var zero T
		return zero, errs
	}
	return in, nil
}

// requiredText trims the field and rejects an empty result.
func requiredText[T any](field, msg string, get func(*T) *string) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		p := get(v)
		*p = strings.TrimSpace(*p)
		if *p == "" {
			return msg
		}
		return ""
	}}
}

// optionalRequiredText is requiredText for a field that may be omitted.
func optionalRequiredText[T any](field, msg string, get func(*T) **string) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		p := get(v)
		if *p == nil {
			return ""
		}
		trimmed := strings.TrimSpace(**p)
		*p = &trimmed
		if trimmed == "" {
			return msg
		}
		return ""
	}}
}

// optionalText trims the field. With dropEmpty an empty result becomes nil;
// otherwise it is kept so updates can clear the stored value.
func optionalText[T any](field string, dropEmpty bool, get func(*T) **string) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		p := get(v)
		if *p == nil {
			return ""
		}
		trimmed := strings.TrimSpace(**p)
		if trimmed == "" && dropEmpty {
			*p = nil
			return ""
		}
		*p = &trimmed
		return ""
	}}
}

func nonNegativeInt[T any](field, msg string, get func(*T) *int) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		if *get(v) < 0 {
			return msg
		}
		return ""
	}}
}

func optionalNonNegativeInt[T any](field, msg string, get func(*T) **int) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		if p := *get(v); p != nil && *p < 0 {
			return msg
		}
		return ""
	}}
}

func optionalPrice[T any](field string, get func(*T) **float64) rule[T] {
	return rule[T]{field: field, check: func(v *T) string {
		p := *get(v)
		switch {
		case p == nil:
			return ""
		case math.IsNaN(*p) || math.IsInf(*p, 0):
			return MsgPriceNotFinite
		case *p < 0:
			return MsgNegativePrice
		}
		return ""
	}}
}

var createInventoryRules = []rule[domain.CreateInventory]{
	requiredText("name", MsgInventoryName, func(in *domain.CreateInventory) *string { return &in.Name }),
	optionalText("description", true, func(in *domain.CreateInventory) **string { return &in.Description }),
}

var updateInventoryRules = []rule[domain.UpdateInventory]{
	optionalRequiredText("name", MsgInventoryName, func(in *domain.UpdateInventory) **string { return &in.Name }),
	optionalText("description", false, func(in *domain.UpdateInventory) **string { return &in.Description }),
}

var createItemRules = []rule[domain.CreateItem]{
	requiredText("inventoryId", MsgInventoryIDRequired, func(in *domain.CreateItem) *string { return &in.InventoryID }),
	requiredText("name", MsgItemName, func(in *domain.CreateItem) *string { return &in.Name }),
	optionalText("description", true, func(in *domain.CreateItem) **string { return &in.Description }),
	nonNegativeInt("quantity", MsgNegativeQuantity, func(in *domain.CreateItem) *int { return &in.Quantity }),
	optionalPrice("price", func(in *domain.CreateItem) **float64 { return &in.Price }),
	optionalText("category", true, func(in *domain.CreateItem) **string { return &in.Category }),
	optionalText("location", true, func(in *domain.CreateItem) **string { return &in.Location }),
	optionalText("barcode", true, func(in *domain.CreateItem) **string { return &in.Barcode }),
}

var updateItemRules = []rule[domain.UpdateItem]{
	optionalRequiredText("inventoryId", MsgInventoryIDRequired, func(in *domain.UpdateItem) **string { return &in.InventoryID }),
	optionalRequiredText("name", MsgItemName, func(in *domain.UpdateItem) **string { return &in.Name }),
	optionalText("description", false, func(in *domain.UpdateItem) **string { return &in.Description }),
	optionalNonNegativeInt("quantity", MsgNegativeQuantity, func(in *domain.UpdateItem) **int { return &in.Quantity }),
	optionalPrice("price", func(in *domain.UpdateItem) **float64 { return &in.Price }),
	{field: "price", check: func(in *domain.UpdateItem) string {
		if in.ClearPrice && in.Price != nil {
			return MsgPriceConflict
		}
		return ""
	}},
	optionalText("category", false, func(in *domain.UpdateItem) **string { return &in.Category }),
	optionalText("location", false, func(in *domain.UpdateItem) **string { return &in.Location }),
	optionalText("barcode", false, func(in *domain.UpdateItem) **string { return &in.Barcode }),
	{field: "expirationDate", check: func(in *domain.UpdateItem) string {
		if in.ClearExpirationDate && in.ExpirationDate != nil {
			return MsgExpirationConflict
		}
		return ""
	}},
}

// CreateInventory validates a new inventory and returns it normalized.
func CreateInventory(in domain.CreateInventory) (domain.CreateInventory, error) {
	return apply(domain.EntityInventory, createInventoryRules, in)
}

// UpdateInventory validates a partial inventory update. An update with no
// fields is valid.
func UpdateInventory(in domain.UpdateInventory) (domain.UpdateInventory, error) {
	return apply(domain.EntityInventory, updateInventoryRules, in)
}

// CreateItem validates a new item and returns it normalized.
func CreateItem(in domain.CreateItem) (domain.CreateItem, error) {
	return apply(domain.EntityItem, createItemRules, in)
}

// UpdateItem validates a partial item update. An update with no fields is valid.
func UpdateItem(in domain.UpdateItem) (domain.UpdateItem, error) {
	return apply(domain.EntityItem, updateItemRules, in)
}

// ID checks that a record identifier is present.
func ID(entity domain.EntityType, id string) error {
	errs := &Errors{Entity: entity}
	if strings.TrimSpace(id) == "" {
		errs.add("id", MsgIDRequired)
	}
	return errs.orNil()
}

// Inventory checks the shape of a stored inventory record.
func Inventory(inv domain.Inventory) error {
	errs := &Errors{Entity: domain.EntityInventory}
	if inv.ID == "" {
		errs.add("id", MsgIDRequired)
	}
	if strings.TrimSpace(inv.Name) == "" {
		errs.add("name", MsgInventoryName)
	}
	checkTimestamps(errs, "createdAt", inv.CreatedAt, inv.UpdatedAt)
	return errs.orNil()
}

// Item checks the shape of a stored item record.
func Item(item domain.Item) error {
	errs := &Errors{Entity: domain.EntityItem}
	if item.ID == "" {
		errs.add("id", MsgIDRequired)
	}
	if strings.TrimSpace(item.InventoryID) == "" {
		errs.add("inventoryId", MsgInventoryIDRequired)
	}
	if strings.TrimSpace(item.Name) == "" {
		errs.add("name", MsgItemName)
	}
	if item.Quantity < 0 {
		errs.add("quantity", MsgNegativeQuantity)
	}
	if item.Price != nil && *item.Price < 0 {
		errs.add("price", MsgNegativePrice)
	}
	checkTimestamps(errs, "entryDate", item.EntryDate, item.UpdatedAt)
	return errs.orNil()
}

func checkTimestamps(errs *Errors, createdField string, created, updated time.Time) {
	if created.IsZero() {
		errs.add(createdField, MsgTimestampRequired)
	}
	if updated.IsZero() {
		errs.add("updatedAt", MsgTimestampRequired)
		return
	}
	if updated.Before(created) {
		errs.add("updatedAt", MsgUpdatedBeforeCreate)
	}
}

func (e *Errors) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *Errors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
