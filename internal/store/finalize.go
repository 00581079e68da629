package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/inventar/internal/model"
)

// ClaimFinalization recomputes the signature state of a movement and, when
// both roles are present and the movement has not been finalized, marks it as
// being finalized. Only one caller can hold the claim; it must end with
// FinalizeGroup or ReleaseFinalization.
func ClaimFinalization(ctx context.Context, db *sql.DB, movementID int64) (bool, model.SignatureState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, model.SignatureState{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := signatureState(ctx, tx, movementID)
	if err != nil {
		return false, state, err
	}
	if !state.DualSigned() {
		return false, state, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE movements SET finalizing = 1, finalizing_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND finalizing = 0 AND finalized_at IS NULL`,
		movementID,
	)
	if err != nil {
		return false, state, fmt.Errorf("claiming finalization: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, state, fmt.Errorf("claiming finalization: %w", err)
	}
	if n == 0 {
		return false, state, nil
	}

	if err := tx.Commit(); err != nil {
		return false, state, fmt.Errorf("committing finalization claim: %w", err)
	}
	return true, state, nil
}

// ReleaseFinalization drops a claim taken by ClaimFinalization without
// finalizing, so a later submission or retry can try again.
func ReleaseFinalization(ctx context.Context, db *sql.DB, movementID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE movements SET finalizing = 0, finalizing_at = NULL WHERE id = ?`, movementID,
	)
	if err != nil {
		return fmt.Errorf("releasing finalization: %w", err)
	}
	return nil
}

// ReleaseStaleFinalization drops a claim only when it was taken at least
// olderThan ago, leaving claims of attempts that may still be running alone.
// It reports whether a claim was dropped.
func ReleaseStaleFinalization(ctx context.Context, db *sql.DB, movementID int64, olderThan time.Duration) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE movements SET finalizing = 0, finalizing_at = NULL
		 WHERE id = ? AND finalizing = 1 AND finalized_at IS NULL
		   AND (finalizing_at IS NULL OR finalizing_at <= datetime('now', ?))`,
		movementID, fmt.Sprintf("-%d seconds", int64(olderThan/time.Second)),
	)
	if err != nil {
		return false, fmt.Errorf("releasing stale finalization: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("releasing stale finalization: %w", err)
	}
	return n > 0, nil
}

// SetGroupDocument points every movement in ids at an unsigned transfer
// document and records it as a document file on the representative.
func SetGroupDocument(ctx context.Context, db *sql.DB, representativeID int64, ids []int64, doc model.MovementFile) error {
	return writeGroupDocument(ctx, db, representativeID, ids, doc, false)
}

// FinalizeGroup points every movement in ids at the signed transfer document,
// marks them signed and finalized and clears the claim, all in one transaction.
func FinalizeGroup(ctx context.Context, db *sql.DB, representativeID int64, ids []int64, doc model.MovementFile) error {
	return writeGroupDocument(ctx, db, representativeID, ids, doc, true)
}

func writeGroupDocument(ctx context.Context, db *sql.DB, representativeID int64, ids []int64, doc model.MovementFile, final bool) error {
	if len(ids) == 0 {
		return model.ErrEmptyGroup
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	update := `UPDATE movements SET document_key = ?, document_url = ?`
	if final {
		update += `, transfer_status = 'signed', finalizing = 0, finalizing_at = NULL, finalized_at = CURRENT_TIMESTAMP`
	}
	query, args, err := sqlx.In(update+` WHERE id IN (?)`, doc.BlobKey, doc.BlobURL, ids)
	if err != nil {
		return fmt.Errorf("building document update: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("writing group document: %w", err)
	}
	if n, _ := result.RowsAffected(); int(n) != len(ids) {
		return fmt.Errorf("writing group document: updated %d of %d movements: %w", n, len(ids), model.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO movement_files (movement_id, kind, label, blob_key, blob_url, mime, original_name)
		 VALUES (?, 'document', ?, ?, ?, ?, ?)`,
		representativeID, doc.Label, doc.BlobKey, doc.BlobURL, doc.MIME, doc.OriginalName,
	)
	if err != nil {
		return fmt.Errorf("recording document file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group document: %w", err)
	}
	return nil
}
