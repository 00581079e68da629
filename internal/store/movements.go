package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/inventar/internal/model"
)

const movementSelect = `SELECT m.id, m.item_id, m.direction, m.amount, m.reason, m.notes,
       m.actor_id, m.actor_name, m.source_sector_id, m.target_sector_id,
       m.source_location, m.target_location, m.requires_signature, m.transfer_status,
       m.group_key, m.document_key, m.document_url, m.finalized_at, m.created_at,
       i.name AS item_name, i.sku AS item_sku
FROM movements m
JOIN items i ON i.id = m.item_id`

// RecordMovements applies a batch of movements in one transaction. Rows are
// applied in order, so each stock check sees the effect of the rows before
// it. Any failing row aborts the whole batch with nothing written.
//
// The source sector of every row is the item's current sector; callers
// cannot override it.
func RecordMovements(ctx context.Context, db *sql.DB, actor model.Actor, groupKey string, inputs []model.MovementInput) ([]model.Movement, error) {
	if len(inputs) == 0 {
		return nil, model.NewValidationError("at least one movement required")
	}

	// BEGIN IMMEDIATE (see db.Open): the write lock is held from here until
	// commit, so no concurrent writer can change stock between check and update.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(inputs))
	for i, in := range inputs {
		id, err := recordMovement(ctx, tx, actor, groupKey, in)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing movements: %w", err)
	}

	return ListMovementsByIDs(ctx, db, ids)
}

func recordMovement(ctx context.Context, tx *sql.Tx, actor model.Actor, groupKey string, in model.MovementInput) (int64, error) {
	if !in.Direction.Valid() {
		return 0, model.NewValidationError(fmt.Sprintf("invalid direction %q", in.Direction))
	}

	item, err := getItem(ctx, tx, in.ItemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, fmt.Errorf("item %d: %w", in.ItemID, model.ErrNotFound)
	}
	if !actor.MayActOn(item.SectorID) {
		return 0, fmt.Errorf("item %s: %w", item.Name, model.ErrForbidden)
	}

	if in.TargetSectorID != nil {
		target, err := getSector(ctx, tx, *in.TargetSectorID)
		if err != nil {
			return 0, err
		}
		if target == nil || target.DeletedAt != nil {
			return 0, fmt.Errorf("target sector %d: %w", *in.TargetSectorID, model.ErrNotFound)
		}
	}

	amount := in.Amount
	if amount < 1 {
		amount = 1
	}

	source := item.SectorID
	requires := model.RequiresSignature(in.RequireSignature, source, in.TargetSectorID)

	delta := amount
	if in.Direction == model.DirectionOut {
		delta = -amount
	}

	if item.Quantity+delta < 0 {
		return 0, &model.StockError{ItemID: item.ID, ItemName: item.Name, Available: item.Quantity, Requested: amount}
	}
	if in.Direction == model.DirectionOut && source != nil {
		balance, ok, err := stockBalance(ctx, tx, item.ID, *source)
		if err != nil {
			return 0, err
		}
		if ok && balance < amount {
			return 0, &model.StockError{ItemID: item.ID, ItemName: item.Name, Available: balance, Requested: amount}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		delta, item.ID,
	); err != nil {
		return 0, fmt.Errorf("updating item quantity: %w", err)
	}

	switch in.Direction {
	case model.DirectionOut:
		if err := AdjustStock(ctx, tx, item.ID, source, -amount); err != nil {
			return 0, err
		}
		if err := AdjustStock(ctx, tx, item.ID, in.TargetSectorID, amount); err != nil {
			return 0, err
		}
	case model.DirectionIn:
		dest := in.TargetSectorID
		if dest == nil {
			dest = source
		}
		if err := AdjustStock(ctx, tx, item.ID, dest, amount); err != nil {
			return 0, err
		}
	}

	status := model.TransferSigned
	if requires {
		status = model.TransferPending
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO movements (item_id, direction, amount, reason, notes, actor_id, actor_name,
		                        source_sector_id, target_sector_id, source_location, target_location,
		                        requires_signature, transfer_status, group_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(in.Direction), amount, in.Reason, in.Notes, actor.UserID, actor.Name,
		source, in.TargetSectorID, item.Location, in.TargetLocation,
		requires, string(status), groupKey,
	)
	if err != nil {
		return 0, fmt.Errorf("recording movement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting movement id: %w", err)
	}
	return id, nil
}

// GetMovement returns a movement by ID.
func GetMovement(ctx context.Context, db *sql.DB, id int64) (*model.Movement, error) {
	var m model.Movement
	err := dbx(db).GetContext(ctx, &m, movementSelect+` WHERE m.id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting movement: %w", err)
	}
	return &m, nil
}

// ListMovementsByIDs returns the given movements ordered by ID.
func ListMovementsByIDs(ctx context.Context, db *sql.DB, ids []int64) ([]model.Movement, error) {
	if len(ids) == 0 {
		return []model.Movement{}, nil
	}

	query, args, err := sqlx.In(movementSelect+` WHERE m.id IN (?) ORDER BY m.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("building movement query: %w", err)
	}

	movements := []model.Movement{}
	if err := dbx(db).SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	return movements, nil
}

// ListMovements returns movements, optionally filtered by item or sector,
// most recent first.
func ListMovements(ctx context.Context, db *sql.DB, itemID, sectorID int64) ([]model.Movement, error) {
	query := movementSelect + ` WHERE 1=1`
	var args []any

	if itemID > 0 {
		query += ` AND m.item_id = ?`
		args = append(args, itemID)
	}
	if sectorID > 0 {
		query += ` AND (m.source_sector_id = ? OR m.target_sector_id = ?)`
		args = append(args, sectorID, sectorID)
	}

	query += ` ORDER BY m.created_at DESC, m.id DESC`

	movements := []model.Movement{}
	if err := dbx(db).SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	return movements, nil
}

// ResolveGroup returns the movement group of id: every movement sharing its
// document key, else the signature-requiring movements of its batch, else the
// movement alone.
func ResolveGroup(ctx context.Context, db *sql.DB, id int64) (model.MovementGroup, error) {
	m, err := GetMovement(ctx, db, id)
	if err != nil {
		return model.MovementGroup{}, err
	}
	if m == nil {
		return model.MovementGroup{}, fmt.Errorf("movement %d: %w", id, model.ErrNotFound)
	}

	var query string
	var args []any
	switch {
	case m.DocumentKey != "":
		query = movementSelect + ` WHERE m.document_key = ? ORDER BY m.id`
		args = []any{m.DocumentKey}
	case m.GroupKey != "":
		query = movementSelect + ` WHERE m.group_key = ? AND (m.requires_signature = 1 OR m.id = ?) ORDER BY m.id`
		args = []any{m.GroupKey, m.ID}
	default:
		return model.MovementGroup{Key: fmt.Sprintf("movement-%d", m.ID), Movements: []model.Movement{*m}}, nil
	}

	movements := []model.Movement{}
	if err := dbx(db).SelectContext(ctx, &movements, query, args...); err != nil {
		return model.MovementGroup{}, fmt.Errorf("resolving movement group: %w", err)
	}

	key := m.GroupKey
	if key == "" {
		key = m.DocumentKey
	}
	return model.MovementGroup{Key: key, Movements: movements}, nil
}

// MarkMovementSigned sets a movement's status to signed without a document.
func MarkMovementSigned(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE movements SET transfer_status = 'signed' WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("marking movement signed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("movement %d: %w", id, model.ErrNotFound)
	}
	return nil
}
