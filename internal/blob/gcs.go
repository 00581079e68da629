package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSStore connects to bucket. Credentials come from credentialsJSON when
// set, otherwise from application default credentials. Object URLs are built
// from baseURL, defaulting to the public storage.googleapis.com endpoint.
func NewGCSStore(ctx context.Context, bucket, credentialsJSON, baseURL string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not accessible: %w", bucket, err)
	}

	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Put uploads data under a new key.
func (s *GCSStore) Put(ctx context.Context, data []byte, mimeType, name, prefix string) (Object, error) {
	key := NewKey(prefix, name, mimeType)

	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = mimeType
	if name != "" {
		wc.ContentDisposition = fmt.Sprintf("inline; filename=%q", name)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return Object{}, fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return Object{}, fmt.Errorf("uploading %s: %w", key, err)
	}

	return Object{Key: key, URL: URL(s.baseURL, key)}, nil
}

// Get downloads the object stored under key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
