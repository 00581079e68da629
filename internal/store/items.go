package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/inventar/internal/model"
)

const itemColumns = `id, name, sku, sector_id, quantity, location, created_at, updated_at, deleted_at`

// CreateItem creates a new item. Its initial quantity is booked to the owning
// sector's stock balance in the same transaction.
func CreateItem(ctx context.Context, db *sql.DB, in model.ItemInput) (*model.Item, error) {
	if in.Quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if in.SectorID != nil {
		sector, err := getSector(ctx, tx, *in.SectorID)
		if err != nil {
			return nil, err
		}
		if sector == nil {
			return nil, fmt.Errorf("sector %d: %w", *in.SectorID, model.ErrNotFound)
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (name, sku, sector_id, quantity, location) VALUES (?, ?, ?, ?, ?)`,
		in.Name, in.SKU, in.SectorID, in.Quantity, in.Location,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	if in.Quantity > 0 {
		if err := AdjustStock(ctx, tx, id, in.SectorID, in.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	return getItem(ctx, db, id)
}

func getItem(ctx context.Context, q dbtx, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&item.ID, &item.Name, &item.SKU, &item.SectorID, &item.Quantity, &item.Location,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all non-deleted items, optionally filtered by sector.
func ListItems(ctx context.Context, db *sql.DB, sectorID int64) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE deleted_at IS NULL`
	var args []any
	if sectorID > 0 {
		query += ` AND sector_id = ?`
		args = append(args, sectorID)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.SKU, &item.SectorID, &item.Quantity, &item.Location,
			&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's descriptive fields. Quantity and sector only
// change through movements.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, name, sku, location string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, sku = ?, location = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, sku, location, id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// DeleteItem soft-deletes an item.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}
