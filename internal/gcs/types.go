package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Scheme prefixes every Cloud Storage URI.
const Scheme = "gs://"

// ErrInvalidURI is returned for URIs without a gs:// bucket and object path.
var ErrInvalidURI = errors.New("invalid GCS URI")

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadFile uploads a local file to the object named by gcsURI.
	UploadFile(ctx context.Context, gcsURI, filePath string) error

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ExtractFilenameFromGCSURI extracts the filename from a storage URI.
	ExtractFilenameFromGCSURI(uri string) string
}

// IsURI reports whether s points into Cloud Storage.
func IsURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, Scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last path element of a storage URI.
// e.g., "gs://bucket/exports/rfm.xlsx" → "rfm.xlsx"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, Scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
