package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

type GCSStore struct {
	client *storage.Client
	bucket string // used for keys without a gs:// prefix
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (s *GCSStore) locate(path string) (string, string, error) {
	if strings.HasPrefix(path, gcsScheme) {
		return splitGCSPath(path)
	}
	if s.bucket == "" {
		return "", "", errs.NewFatalError(fmt.Sprintf("no bucket for object %q", path), nil)
	}
	return s.bucket, strings.TrimPrefix(path, "/"), nil
}

func (s *GCSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, object, err := s.locate(path)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errs.NewFatalError(fmt.Sprintf("object %s not found", path), err)
	}
	if err != nil {
		return nil, errs.NewExternalServiceError("gcs", true, "", err)
	}
	return r, nil
}

func (s *GCSStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	bucket, object, err := s.locate(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", errs.NewExternalServiceError("gcs", true, "", err)
	}
	if err := w.Close(); err != nil {
		return "", errs.NewExternalServiceError("gcs", true, "", err)
	}
	return gcsScheme + bucket + "/" + object, nil
}
