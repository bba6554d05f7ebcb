package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

// SupabaseStore talks to the Supabase Storage REST API of one bucket.
type SupabaseStore struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

func NewSupabaseStore(baseURL, serviceRoleKey, bucket string) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceRoleKey,
		bucket:  bucket,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *SupabaseStore) objectURL(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

func (s *SupabaseStore) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(path), body)
	if err != nil {
		return nil, errs.NewFatalError("build storage request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	return req, nil
}

func (s *SupabaseStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, errs.NewExternalServiceError("supabase-storage", true, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp, path)
	}
	return resp.Body, nil
}

func (s *SupabaseStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	req, err := s.newRequest(ctx, http.MethodPost, key, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", errs.NewExternalServiceError("supabase-storage", true, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError(resp, key)
	}
	return strings.TrimPrefix(key, "/"), nil
}

func statusError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		// Supabase answers 400 for missing objects in some versions.
		return errs.NewFatalError("object not found", err)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errs.NewExternalServiceError("supabase-storage", false, string(body), err)
	default:
		return errs.NewExternalServiceError("supabase-storage", resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, string(body), err)
	}
}
