// Package blob archives signature images, photos and transfer documents.
package blob

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("blob not found")

// Object identifies a stored blob.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Store is durable, read-after-write consistent blob storage.
type Store interface {
	Put(ctx context.Context, data []byte, mimeType, name, prefix string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewKey returns a unique object key under prefix, keeping the extension of
// name or deriving one from mimeType.
func NewKey(prefix, name, mimeType string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext)
}

// URL joins a public base URL and an object key.
func URL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
