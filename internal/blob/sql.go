package blob

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore keeps blobs in the application database. Objects are served by
// the API under BaseURL.
type SQLStore struct {
	DB      *sql.DB
	BaseURL string
}

// Put stores data under a new key.
func (s *SQLStore) Put(ctx context.Context, data []byte, mimeType, name, prefix string) (Object, error) {
	key := NewKey(prefix, name, mimeType)
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO blobs (key, mime, name, data) VALUES (?, ?, ?, ?)`,
		key, mimeType, name, data,
	)
	if err != nil {
		return Object{}, fmt.Errorf("storing blob: %w", err)
	}
	return Object{Key: key, URL: URL(s.BaseURL, key)}, nil
}

// Get returns the bytes stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := s.Open(ctx, key)
	return data, err
}

// Open returns the bytes and MIME type stored under key.
func (s *SQLStore) Open(ctx context.Context, key string) ([]byte, string, error) {
	var data []byte
	var mimeType string
	err := s.DB.QueryRowContext(ctx,
		`SELECT data, mime FROM blobs WHERE key = ?`, key,
	).Scan(&data, &mimeType)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading blob: %w", err)
	}
	return data, mimeType, nil
}
