package gcsuploader

import (
	"context"

	"github.com/dvloznov/customer-rfm/internal/gcs"
)

// Re-export interface from shared package for backward compatibility
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// UploadFile delegates to the package-level UploadFile function.
func (s *GCSStorageService) UploadFile(ctx context.Context, gcsURI, filePath string) error {
	return UploadFile(ctx, gcsURI, filePath)
}

// FetchFromGCS delegates to the package-level FetchFromGCS function.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCS(ctx, gcsURI)
}

// ExtractFilenameFromGCSURI delegates to gcs.Filename.
func (s *GCSStorageService) ExtractFilenameFromGCSURI(uri string) string {
	return gcs.Filename(uri)
}
