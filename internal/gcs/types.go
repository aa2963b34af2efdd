package gcs

import (
	"context"
	"io"
)

// StorageService stores backup objects in a bucket. Backups depend on this
// interface so they can be tested without cloud credentials.
type StorageService interface {
	// Upload writes r to bucket/object, replacing any existing object.
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error

	// Download returns the bytes of bucket/object.
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}
