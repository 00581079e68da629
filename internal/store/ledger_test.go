package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

func TestAdjustStockUpserts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sector := mustSector(t, database, "Storage")
	item := mustItem(t, database, "Widget", nil, 0)

	if err := AdjustStock(ctx, database, item.ID, &sector.ID, 5); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if err := AdjustStock(ctx, database, item.ID, &sector.ID, 3); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	stock, _ := ListStock(ctx, database, sector.ID)
	if len(stock) != 1 {
		t.Fatalf("expected 1 stock entry, got %d", len(stock))
	}
	if stock[0].Quantity != 8 {
		t.Errorf("expected quantity 8, got %d", stock[0].Quantity)
	}
	if stock[0].ItemName != "Widget" || stock[0].SectorName != "Storage" {
		t.Errorf("unexpected joined names: %+v", stock[0])
	}
}

func TestAdjustStockNilSectorIsNoop(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := mustItem(t, database, "Widget", nil, 0)
	if err := AdjustStock(ctx, database, item.ID, nil, 5); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	stock, _ := ListStock(ctx, database, 0)
	if len(stock) != 0 {
		t.Errorf("expected no stock rows, got %v", stock)
	}
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sector := mustSector(t, database, "Storage")
	item := mustItem(t, database, "Widget", &sector.ID, 2)

	err := AdjustStock(ctx, database, item.ID, &sector.ID, -5)
	if !errors.Is(err, model.ErrLedgerClamped) {
		t.Fatalf("expected ErrLedgerClamped, got %v", err)
	}
	if got := balance(t, database, item.ID, sector.ID); got != 0 {
		t.Errorf("expected clamped balance 0, got %d", got)
	}
}

func TestStockRowsKeptAtZero(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sector := mustSector(t, database, "Storage")
	item := mustItem(t, database, "Widget", &sector.ID, 4)

	if err := AdjustStock(ctx, database, item.ID, &sector.ID, -4); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	_, ok, err := stockBalance(ctx, database, item.ID, sector.ID)
	if err != nil {
		t.Fatalf("stockBalance: %v", err)
	}
	if !ok {
		t.Error("expected zero balance row to be kept")
	}
}

func TestGetItemDistribution(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustSector(t, database, "A")
	b := mustSector(t, database, "B")
	item := mustItem(t, database, "Widget", &a.ID, 6)
	AdjustStock(ctx, database, item.ID, &b.ID, 2)

	dist, err := GetItemDistribution(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItemDistribution: %v", err)
	}
	if len(dist) != 2 {
		t.Fatalf("expected 2 sectors, got %d", len(dist))
	}
	if dist[0].SectorName != "A" || dist[0].Quantity != 6 {
		t.Errorf("unexpected A balance: %+v", dist[0])
	}
	if dist[1].SectorName != "B" || dist[1].Quantity != 2 {
		t.Errorf("unexpected B balance: %+v", dist[1])
	}
}
