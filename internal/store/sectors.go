package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/inventar/internal/model"
)

// CreateSector creates a new sector.
func CreateSector(ctx context.Context, db *sql.DB, name string) (*model.Sector, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO sectors (name) VALUES (?)`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating sector: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting sector id: %w", err)
	}

	return GetSector(ctx, db, id)
}

// GetSector returns a sector by ID.
func GetSector(ctx context.Context, db *sql.DB, id int64) (*model.Sector, error) {
	return getSector(ctx, db, id)
}

func getSector(ctx context.Context, q dbtx, id int64) (*model.Sector, error) {
	s := &model.Sector{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at
		 FROM sectors WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.CreatedAt, &s.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sector: %w", err)
	}
	return s, nil
}

// ListSectors returns all non-deleted sectors.
func ListSectors(ctx context.Context, db *sql.DB) ([]model.Sector, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, created_at, deleted_at
		 FROM sectors WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sectors: %w", err)
	}
	defer rows.Close()

	var sectors []model.Sector
	for rows.Next() {
		var s model.Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

// SectorNames returns a lookup of every sector's name, deleted ones included,
// so historical movements still resolve.
func SectorNames(ctx context.Context, db *sql.DB) (model.SectorNames, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM sectors`)
	if err != nil {
		return nil, fmt.Errorf("listing sector names: %w", err)
	}
	defer rows.Close()

	names := model.SectorNames{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning sector name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// UpdateSector renames a sector.
func UpdateSector(ctx context.Context, db *sql.DB, id int64, name string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sectors SET name = ? WHERE id = ? AND deleted_at IS NULL`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("updating sector: %w", err)
	}
	return nil
}

// DeleteSector soft-deletes a sector. Fails if the sector still owns items.
func DeleteSector(ctx context.Context, db *sql.DB, id int64) error {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE sector_id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking sector items: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete sector: still owns %d items", count)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE sectors SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting sector: %w", err)
	}
	return nil
}
