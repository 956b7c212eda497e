package logo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"taxbridge/internal/core"
)

// GCSStore keeps logos in a Cloud Storage bucket with public object URLs.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	overwrite bool
}

// NewGCSStore uses Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, overwrite bool) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, overwrite: overwrite}, nil
}

func (s *GCSStore) Put(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	if !ValidObject(object) {
		return "", core.NewValidation("object", fmt.Errorf("invalid object name %q", object))
	}
	obj := s.client.Bucket(s.bucket).Object(object)
	if !s.overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy logo to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", core.NewConflict("logo already exists", err)
		}
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return s.URL(object), nil
}

func (s *GCSStore) Open(ctx context.Context, object string) (io.ReadCloser, string, error) {
	rc, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", core.NewNotFound("logo not found")
		}
		return nil, "", fmt.Errorf("read logo %s/%s: %w", s.bucket, object, err)
	}
	return rc, rc.Attrs.ContentType, nil
}

func (s *GCSStore) URL(object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, object)
}

// ObjectFromURL returns the object name when url points into this bucket.
func (s *GCSStore) ObjectFromURL(url string) (string, bool) {
	prefix := fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucket)
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	object := strings.TrimPrefix(url, prefix)
	return object, ValidObject(object)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
