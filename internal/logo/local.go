package logo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"taxbridge/internal/core"
)

// LocalStore keeps logos in a directory and serves them under a public
// URL prefix.
type LocalStore struct {
	dir       string
	publicURL string
	overwrite bool
}

func NewLocalStore(dir, publicURL string, overwrite bool) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logo directory: %w", err)
	}
	if publicURL == "" {
		publicURL = "/logos"
	}
	return &LocalStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/"), overwrite: overwrite}, nil
}

func (s *LocalStore) Put(_ context.Context, object, _ string, r io.Reader) (string, error) {
	if !ValidObject(object) {
		return "", core.NewValidation("object", fmt.Errorf("invalid object name %q", object))
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if s.overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	target := filepath.Join(s.dir, object)
	f, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", core.NewConflict("logo already exists", err)
		}
		return "", fmt.Errorf("create logo: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(target)
		return "", fmt.Errorf("write logo: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close logo: %w", err)
	}
	return s.URL(object), nil
}

func (s *LocalStore) Open(_ context.Context, object string) (io.ReadCloser, string, error) {
	if !ValidObject(object) {
		return nil, "", core.NewNotFound("logo not found")
	}
	f, err := os.Open(filepath.Join(s.dir, object))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", core.NewNotFound("logo not found")
		}
		return nil, "", fmt.Errorf("open logo: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(object))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

func (s *LocalStore) URL(object string) string {
	return s.publicURL + "/" + object
}

// ObjectFromURL returns the object name when url points into this store.
func (s *LocalStore) ObjectFromURL(url string) (string, bool) {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	object := strings.TrimPrefix(url, prefix)
	return object, ValidObject(object)
}
