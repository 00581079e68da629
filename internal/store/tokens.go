package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/erazemk/inventar/internal/model"
)

// tokenBytes is the entropy of a public signing token.
const tokenBytes = 32

// GenerateToken returns a new URL-safe random token.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EnsureToken returns a non-expired token for the movement, issuing a new one
// with the given ttl if none exists. The second return value reports whether
// a token was created. Expired tokens are kept but never reused.
func EnsureToken(ctx context.Context, db *sql.DB, movementID int64, ttl time.Duration, now time.Time) (*model.PublicToken, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements WHERE id = ?`, movementID).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("checking movement: %w", err)
	}
	if exists == 0 {
		return nil, false, fmt.Errorf("movement %d: %w", movementID, model.ErrNotFound)
	}

	existing, err := scanToken(tx.QueryRowContext(ctx,
		`SELECT id, movement_id, token, expires_at, created_at
		 FROM movement_tokens
		 WHERE movement_id = ? AND expires_at > ?
		 ORDER BY expires_at DESC, id DESC LIMIT 1`,
		movementID, now.Unix(),
	))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, false, err
	}
	expiresAt := now.Add(ttl)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO movement_tokens (movement_id, token, expires_at) VALUES (?, ?, ?)`,
		movementID, token, expiresAt.Unix(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("storing token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("getting token id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing token: %w", err)
	}

	return &model.PublicToken{
		ID:         id,
		MovementID: movementID,
		Token:      token,
		ExpiresAt:  time.Unix(expiresAt.Unix(), 0),
		CreatedAt:  now,
	}, true, nil
}

// LookupToken resolves a token string. Unknown tokens return ErrTokenNotFound
// and tokens past their expiry return ErrTokenExpired.
func LookupToken(ctx context.Context, db *sql.DB, token string, now time.Time) (*model.PublicToken, error) {
	if token == "" {
		return nil, model.ErrTokenNotFound
	}

	t, err := scanToken(db.QueryRowContext(ctx,
		`SELECT id, movement_id, token, expires_at, created_at
		 FROM movement_tokens WHERE token = ?`, token,
	))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, model.ErrTokenNotFound
	}
	if t.Expired(now) {
		return nil, model.ErrTokenExpired
	}
	return t, nil
}

// ListTokens returns every token issued for a movement, newest first.
func ListTokens(ctx context.Context, db *sql.DB, movementID int64) ([]model.PublicToken, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, movement_id, token, expires_at, created_at
		 FROM movement_tokens WHERE movement_id = ?
		 ORDER BY expires_at DESC, id DESC`, movementID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.PublicToken
	for rows.Next() {
		t, err := scanTokenRow(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row *sql.Row) (*model.PublicToken, error) {
	t, err := scanTokenRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTokenRow(s scanner) (*model.PublicToken, error) {
	var t model.PublicToken
	var expires int64
	if err := s.Scan(&t.ID, &t.MovementID, &t.Token, &expires, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning token: %w", err)
	}
	t.ExpiresAt = time.Unix(expires, 0)
	return &t, nil
}
