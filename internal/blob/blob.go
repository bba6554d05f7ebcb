// Package blob reads and writes uploaded artifacts (CSV imports, email
// attachments) in Supabase Storage or Google Cloud Storage.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

const gcsScheme = "gs://"

type Backend interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Router sends gs:// paths to GCS and everything else to the default
// backend.
type Router struct {
	Default Backend
	GCS     Backend
}

func (r *Router) backend(path string) (Backend, error) {
	if strings.HasPrefix(path, gcsScheme) {
		if r.GCS == nil {
			return nil, errs.NewFatalError(fmt.Sprintf("no gcs backend configured for %s", path), nil)
		}
		return r.GCS, nil
	}
	if r.Default == nil {
		return nil, errs.NewFatalError(fmt.Sprintf("no storage backend configured for %s", path), nil)
	}
	return r.Default, nil
}

func (r *Router) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	b, err := r.backend(path)
	if err != nil {
		return nil, err
	}
	return b.Open(ctx, path)
}

// Upload always targets the default backend unless key is a gs:// path.
func (r *Router) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	b, err := r.backend(key)
	if err != nil {
		return "", err
	}
	return b.Upload(ctx, key, contentType, data)
}

// Download reads the whole object at path. The reader is closed before
// returning on every path.
func Download(ctx context.Context, b Backend, path string) (data []byte, err error) {
	rc, err := b.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cErr := rc.Close(); cErr != nil && err == nil {
			err = errs.NewExternalServiceError("storage", true, "", cErr)
		}
	}()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, errs.NewExternalServiceError("storage", true, "", fmt.Errorf("read %s: %w", path, err))
	}
	return data, nil
}

func splitGCSPath(path string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(path, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", errs.NewFatalError(fmt.Sprintf("invalid gcs path %q", path), nil)
	}
	return bucket, object, nil
}
