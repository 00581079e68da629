package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/inventar/internal/model"
)

// MovementsByItem returns the movements of each item, most recent first.
func MovementsByItem(ctx context.Context, db *sql.DB, itemIDs []int64) (map[int64][]model.Movement, error) {
	out := map[int64][]model.Movement{}
	if len(itemIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(movementSelect+` WHERE m.item_id IN (?) ORDER BY m.created_at DESC, m.id DESC`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("building movements query: %w", err)
	}

	var movements []model.Movement
	if err := dbx(db).SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("loading movements by item: %w", err)
	}
	for _, m := range movements {
		out[m.ItemID] = append(out[m.ItemID], m)
	}
	return out, nil
}

// FilesByMovement returns the attached files of each movement, newest first.
func FilesByMovement(ctx context.Context, db *sql.DB, movementIDs []int64) (map[int64][]model.MovementFile, error) {
	out := map[int64][]model.MovementFile{}
	if len(movementIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+fileColumns+` FROM movement_files
		WHERE movement_id IN (?) ORDER BY uploaded_at DESC, id DESC`, movementIDs)
	if err != nil {
		return nil, fmt.Errorf("building files query: %w", err)
	}

	var files []model.MovementFile
	if err := dbx(db).SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("loading files by movement: %w", err)
	}
	for _, f := range files {
		out[f.MovementID] = append(out[f.MovementID], f)
	}
	return out, nil
}

// TokensByMovement returns the public tokens of each movement, latest expiry first.
func TokensByMovement(ctx context.Context, db *sql.DB, movementIDs []int64) (map[int64][]model.PublicToken, error) {
	out := map[int64][]model.PublicToken{}
	if len(movementIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, movement_id, token, expires_at, created_at
		FROM movement_tokens WHERE movement_id IN (?) ORDER BY expires_at DESC, id DESC`, movementIDs)
	if err != nil {
		return nil, fmt.Errorf("building tokens query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading tokens by movement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTokenRow(rows)
		if err != nil {
			return nil, err
		}
		out[t.MovementID] = append(out[t.MovementID], *t)
	}
	return out, rows.Err()
}

// MovementOverview is the read-side view of a set of items' movements.
type MovementOverview struct {
	Movements map[int64][]model.Movement     `json:"movements"`
	Files     map[int64][]model.MovementFile `json:"files"`
	Tokens    map[int64][]model.PublicToken  `json:"tokens"`
}

// SignatureState returns the derived signature state of one movement in the
// overview.
func (o MovementOverview) SignatureState(movementID int64) model.SignatureState {
	return model.NewSignatureState(o.Files[movementID])
}

// ActiveToken returns the newest unexpired token of a movement, or nil.
func (o MovementOverview) ActiveToken(movementID int64, now time.Time) *model.PublicToken {
	for _, t := range o.Tokens[movementID] {
		if !t.Expired(now) {
			return &t
		}
	}
	return nil
}

// LoadMovementOverview loads the movements of the given items, then their
// files and tokens concurrently.
func LoadMovementOverview(ctx context.Context, db *sql.DB, itemIDs []int64) (*MovementOverview, error) {
	movements, err := MovementsByItem(ctx, db, itemIDs)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, ms := range movements {
		for _, m := range ms {
			ids = append(ids, m.ID)
		}
	}

	overview := &MovementOverview{Movements: movements}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		files, err := FilesByMovement(gctx, db, ids)
		if err != nil {
			return err
		}
		overview.Files = files
		return nil
	})
	g.Go(func() error {
		tokens, err := TokensByMovement(gctx, db, ids)
		if err != nil {
			return err
		}
		overview.Tokens = tokens
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return overview, nil
}
