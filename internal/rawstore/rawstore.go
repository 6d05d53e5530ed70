// Package rawstore archives raw scraper payloads to Google Cloud Storage so
// a reconciliation run can be audited and replayed after the fact.
package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSArchive writes payloads into a bucket under
// raw/<account_id>/<yyyy/mm/dd>/<uuid>.json.
// It assumes Application Default Credentials are configured
// (gcloud auth application-default login).
type GCSArchive struct {
	client *storage.Client
	bucket string
}

// NewGCSArchive creates an archive backed by the given bucket.
func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchive{client: client, bucket: bucket}, nil
}

// Close releases the underlying storage client.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}

// ArchivePayload stores the payload as JSON and returns its gs:// URI.
func (a *GCSArchive) ArchivePayload(ctx context.Context, accountID string, payload map[string]interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	objectName := fmt.Sprintf("raw/%s/%s/%s.json",
		accountID, time.Now().UTC().Format("2006/01/02"), uuid.NewString())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write payload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Fetch downloads an archived payload from its gs:// URI.
func (a *GCSArchive) Fetch(ctx context.Context, gcsURI string) (map[string]interface{}, error) {
	bucket, object, err := parseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding archived payload: %w", err)
	}
	return payload, nil
}

func parseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
