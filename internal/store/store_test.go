package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/inventar/internal/model"
)

var manager = model.Actor{UserID: 1, Name: "Manager", CanManage: true, CrossSector: true}

func mustSector(t *testing.T, database *sql.DB, name string) *model.Sector {
	t.Helper()
	s, err := CreateSector(context.Background(), database, name)
	if err != nil {
		t.Fatalf("CreateSector(%q): %v", name, err)
	}
	return s
}

func mustItem(t *testing.T, database *sql.DB, name string, sectorID *int64, qty int) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), database, model.ItemInput{
		Name:     name,
		SKU:      "SKU-" + name,
		SectorID: sectorID,
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("CreateItem(%q): %v", name, err)
	}
	return item
}

func balance(t *testing.T, database *sql.DB, itemID, sectorID int64) int {
	t.Helper()
	qty, _, err := stockBalance(context.Background(), database, itemID, sectorID)
	if err != nil {
		t.Fatalf("stockBalance: %v", err)
	}
	return qty
}

func itemQuantity(t *testing.T, database *sql.DB, itemID int64) int {
	t.Helper()
	item, err := GetItem(context.Background(), database, itemID)
	if err != nil || item == nil {
		t.Fatalf("GetItem(%d): %v", itemID, err)
	}
	return item.Quantity
}
