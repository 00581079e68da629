package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/inventar/internal/model"
)

const fileColumns = `id, movement_id, kind, label, blob_key, blob_url, mime, original_name, uploaded_at`

// AddMovementFile attaches an uploaded blob to a movement.
func AddMovementFile(ctx context.Context, db *sql.DB, f model.MovementFile) (*model.MovementFile, error) {
	if !f.Kind.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("invalid file kind %q", f.Kind))
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO movement_files (movement_id, kind, label, blob_key, blob_url, mime, original_name)
		 SELECT id, ?, ?, ?, ?, ?, ? FROM movements WHERE id = ?`,
		string(f.Kind), f.Label, f.BlobKey, f.BlobURL, f.MIME, f.OriginalName, f.MovementID,
	)
	if err != nil {
		return nil, fmt.Errorf("adding movement file: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("movement %d: %w", f.MovementID, model.ErrNotFound)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting file id: %w", err)
	}

	var file model.MovementFile
	if err := dbx(db).GetContext(ctx, &file, `SELECT `+fileColumns+` FROM movement_files WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("getting movement file: %w", err)
	}
	return &file, nil
}

// ListMovementFiles returns a movement's files, newest first.
func ListMovementFiles(ctx context.Context, db *sql.DB, movementID int64) ([]model.MovementFile, error) {
	return listMovementFiles(ctx, db, movementID, "")
}

func listMovementFiles(ctx context.Context, q dbtx, movementID int64, kind model.FileKind) ([]model.MovementFile, error) {
	query := `SELECT ` + fileColumns + ` FROM movement_files WHERE movement_id = ?`
	args := []any{movementID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movement files: %w", err)
	}
	defer rows.Close()

	var files []model.MovementFile
	for rows.Next() {
		var f model.MovementFile
		if err := rows.Scan(&f.ID, &f.MovementID, &f.Kind, &f.Label, &f.BlobKey, &f.BlobURL,
			&f.MIME, &f.OriginalName, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning movement file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetSignatureState classifies the signature files of a movement by role.
func GetSignatureState(ctx context.Context, db *sql.DB, movementID int64) (model.SignatureState, error) {
	return signatureState(ctx, db, movementID)
}

func signatureState(ctx context.Context, q dbtx, movementID int64) (model.SignatureState, error) {
	files, err := listMovementFiles(ctx, q, movementID, model.FileSignature)
	if err != nil {
		return model.SignatureState{}, err
	}
	return model.NewSignatureState(files), nil
}
