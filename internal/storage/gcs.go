// Package storage provides object stores for raw transaction files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

const uploadTimeout = 2 * time.Minute

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore opens a client for the bucket. An empty credentials path uses
// Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsPath string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload writes r to the named object.
func (s *GCSStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of %s: %w", name, err)
	}
	return nil
}

// Download reads the named object into memory.
func (s *GCSStore) Download(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, s.bucket, name)
		}
		return nil, fmt.Errorf("open gcs object %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", name, err)
	}
	return data, nil
}

// List returns object names under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gcs objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// New creates the object store selected by cfg.
func New(ctx context.Context, cfg domain.StorageConfig) (domain.ObjectStore, error) {
	switch cfg.Type {
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsPath)
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
