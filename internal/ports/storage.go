package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// localfs echoes the object_key; gcs returns the object name within
	// the configured bucket.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider abstracts object storage (localfs, gcs, s3, ...).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// GetSignedURL may return an empty URL for providers without real
	// signing; callers fall back to serving the object through the API.
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
