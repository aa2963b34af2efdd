package gcsuploader

import (
	"context"
	"io"

	"github.com/dvloznov/twocents/internal/gcs"
)

// GCSStorageService is the concrete implementation of gcs.StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// Upload delegates to UploadReader.
func (s *GCSStorageService) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	return UploadReader(ctx, bucket, object, contentType, r)
}

// Download delegates to DownloadFile.
func (s *GCSStorageService) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	return DownloadFile(ctx, bucket, object)
}

var _ gcs.StorageService = (*GCSStorageService)(nil)
