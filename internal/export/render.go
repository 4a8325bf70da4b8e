package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"stockpile/pkg/domain"
)

const (
	jsonArtifactName = "inventories.json"
	csvArtifactName  = "items.csv"
)

var csvHeader = []string{
	"id", "inventory_id", "inventory_name", "name", "description", "quantity",
	"price", "category", "location", "barcode", "expiration_date", "entry_date", "updated_at",
}

type snapshot struct {
	ExportID    string            `json:"export_id"`
	ExportedAt  time.Time         `json:"exported_at"`
	Inventories []inventoryExport `json:"inventories"`
}

type inventoryExport struct {
	domain.Inventory
	Items []domain.Item `json:"items"`
}

type rendered struct {
	name        string
	contentType string
	payload     []byte
}

func render(format Format, snap snapshot) (rendered, error) {
	switch format {
	case FormatJSON:
		payload, err := renderJSON(snap)
		if err != nil {
			return rendered{}, err
		}
		return rendered{name: jsonArtifactName, contentType: "application/json", payload: payload}, nil
	case FormatCSV:
		payload, err := renderCSV(snap)
		if err != nil {
			return rendered{}, err
		}
		return rendered{name: csvArtifactName, contentType: "text/csv", payload: payload}, nil
	default:
		return rendered{}, fmt.Errorf("unsupported export format %q", format)
	}
}

func renderJSON(snap snapshot) ([]byte, error) {
	if snap.Inventories == nil {
		snap.Inventories = []inventoryExport{}
	}
	for i := range snap.Inventories {
		if snap.Inventories[i].Items == nil {
			snap.Inventories[i].Items = []domain.Item{}
		}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(payload, '\n'), nil
}

// renderCSV writes one row per item. Absent optional values are empty cells.
func renderCSV(snap snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, inv := range snap.Inventories {
		for _, it := range inv.Items {
			row := []string{
				it.ID,
				it.InventoryID,
				inv.Name,
				it.Name,
				text(it.Description),
				strconv.Itoa(it.Quantity),
				price(it.Price),
				text(it.Category),
				text(it.Location),
				text(it.Barcode),
				timestamp(it.ExpirationDate),
				it.EntryDate.UTC().Format(time.RFC3339Nano),
				it.UpdatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func text(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func price(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func timestamp(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.UTC().Format(time.RFC3339Nano)
}
