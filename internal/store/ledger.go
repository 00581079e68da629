package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/inventar/internal/model"
)

// AdjustStock applies delta to the (item, sector) balance, creating the row on
// first touch. Rows are kept at zero, never deleted. A nil sector is the
// unassigned pool and is not tracked.
//
// The result is clamped at zero. Callers validate stock before a negative
// delta, so a clamp means the ledger and the item total disagree; it is
// reported as ErrLedgerClamped for the caller to abort on.
func AdjustStock(ctx context.Context, q dbtx, itemID int64, sectorID *int64, delta int) error {
	if sectorID == nil {
		return nil
	}

	current, _, err := stockBalance(ctx, q, itemID, *sectorID)
	if err != nil {
		return err
	}

	next := current + delta
	clamped := next < 0
	if clamped {
		next = 0
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO stock_balances (item_id, sector_id, quantity) VALUES (?, ?, ?)
		 ON CONFLICT (item_id, sector_id) DO UPDATE
		 SET quantity = excluded.quantity, updated_at = CURRENT_TIMESTAMP`,
		itemID, *sectorID, next,
	)
	if err != nil {
		return fmt.Errorf("adjusting stock: %w", err)
	}

	if clamped {
		return fmt.Errorf("item %d sector %d: %d%+d: %w", itemID, *sectorID, current, delta, model.ErrLedgerClamped)
	}
	return nil
}

// stockBalance returns the balance of (item, sector) and whether a row exists.
func stockBalance(ctx context.Context, q dbtx, itemID, sectorID int64) (int, bool, error) {
	var qty int
	err := q.QueryRowContext(ctx,
		`SELECT quantity FROM stock_balances WHERE item_id = ? AND sector_id = ?`,
		itemID, sectorID,
	).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checking stock balance: %w", err)
	}
	return qty, true, nil
}

// ListStock returns stock balances, optionally filtered by sector.
func ListStock(ctx context.Context, db *sql.DB, sectorID int64) ([]model.StockBalance, error) {
	query := `SELECT sb.item_id, sb.sector_id, sb.quantity, sb.updated_at,
	                 i.name AS item_name, s.name AS sector_name
	          FROM stock_balances sb
	          JOIN items i ON i.id = sb.item_id
	          JOIN sectors s ON s.id = sb.sector_id
	          WHERE i.deleted_at IS NULL`
	var args []any
	if sectorID > 0 {
		query += ` AND sb.sector_id = ?`
		args = append(args, sectorID)
	}
	query += ` ORDER BY i.name, s.name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	defer rows.Close()

	return scanBalances(rows)
}

// GetItemDistribution returns the per-sector balances of one item.
func GetItemDistribution(ctx context.Context, db *sql.DB, itemID int64) ([]model.StockBalance, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT sb.item_id, sb.sector_id, sb.quantity, sb.updated_at,
		        i.name AS item_name, s.name AS sector_name
		 FROM stock_balances sb
		 JOIN items i ON i.id = sb.item_id
		 JOIN sectors s ON s.id = sb.sector_id
		 WHERE sb.item_id = ?
		 ORDER BY s.name`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting item distribution: %w", err)
	}
	defer rows.Close()

	return scanBalances(rows)
}

func scanBalances(rows *sql.Rows) ([]model.StockBalance, error) {
	var balances []model.StockBalance
	for rows.Next() {
		var b model.StockBalance
		if err := rows.Scan(&b.ItemID, &b.SectorID, &b.Quantity, &b.UpdatedAt, &b.ItemName, &b.SectorName); err != nil {
			return nil, fmt.Errorf("scanning stock balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
