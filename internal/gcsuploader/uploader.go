package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/customer-rfm/internal/gcs"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// contentTypes maps output extensions to the MIME type stored on the object.
var contentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".json": "application/json",
}

// UploadFile uploads a local file to the object named by gcsURI.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func UploadFile(ctx context.Context, gcsURI, filePath string) error {
	bucketName, objectName, err := gcs.ParseURI(gcsURI)
	if err != nil {
		return fmt.Errorf("UploadFile: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("UploadFile: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if ct, ok := contentTypes[filepath.Ext(filePath)]; ok {
		w.ContentType = ct
	}
	defer func() {
		// Ensure the writer is closed even on early returns
		_ = w.Close()
	}()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("UploadFile: copy file to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadFile: finalize upload: %w", err)
	}

	return nil
}
