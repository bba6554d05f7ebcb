package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

func TestSupabaseOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/storage/v1/object/csv-imports/u1/file%20one.csv" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("apikey") != "secret" {
			t.Errorf("missing auth headers")
		}
		_, _ = w.Write([]byte("date,name\n"))
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL+"/", "secret", "csv-imports")
	data, err := Download(context.Background(), s, "u1/file one.csv")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "date,name\n" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestSupabaseStatusErrors(t *testing.T) {
	cases := []struct {
		status    int
		fatal     bool
		transient bool
	}{
		{http.StatusNotFound, true, false},
		{http.StatusForbidden, false, false},
		{http.StatusServiceUnavailable, false, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		s := NewSupabaseStore(srv.URL, "secret", "b")
		_, err := s.Open(context.Background(), "x.csv")
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if errs.IsFatal(err) != tc.fatal || errs.IsTransient(err) != tc.transient {
			t.Fatalf("status %d: fatal=%v transient=%v", tc.status, errs.IsFatal(err), errs.IsTransient(err))
		}
	}
}

func TestSupabaseUpload(t *testing.T) {
	var gotBody, gotType, gotUpsert string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType, gotUpsert = string(b), r.Header.Get("Content-Type"), r.Header.Get("x-upsert")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "secret", "attachments")
	key, err := s.Upload(context.Background(), "/a/b.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "a/b.pdf" || gotBody != "%PDF" || gotType != "application/pdf" || gotUpsert != "true" {
		t.Fatalf("key=%q body=%q type=%q upsert=%q", key, gotBody, gotType, gotUpsert)
	}
}

type fakeBackend struct {
	name   string
	opened []string
	body   string
	closed bool
	err    error
}

func (f *fakeBackend) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.opened = append(f.opened, path)
	if f.err != nil {
		return nil, f.err
	}
	return &trackingReader{Reader: strings.NewReader(f.body), closed: &f.closed}, nil
}

func (f *fakeBackend) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	return f.name + ":" + key, nil
}

type trackingReader struct {
	io.Reader
	closed *bool
}

func (r *trackingReader) Close() error {
	*r.closed = true
	return nil
}

func TestRouterPicksBackend(t *testing.T) {
	def, gcs := &fakeBackend{name: "default", body: "a"}, &fakeBackend{name: "gcs", body: "b"}
	r := &Router{Default: def, GCS: gcs}

	if _, err := Download(context.Background(), r, "gs://bucket/file.csv"); err != nil {
		t.Fatal(err)
	}
	if _, err := Download(context.Background(), r, "u1/file.csv"); err != nil {
		t.Fatal(err)
	}
	if len(gcs.opened) != 1 || len(def.opened) != 1 {
		t.Fatalf("gcs=%v default=%v", gcs.opened, def.opened)
	}
	if !gcs.closed || !def.closed {
		t.Fatal("readers must be closed after download")
	}
}

func TestRouterWithoutGCS(t *testing.T) {
	r := &Router{Default: &fakeBackend{}}
	_, err := r.Open(context.Background(), "gs://bucket/file.csv")
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestDownloadPropagatesOpenError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Download(context.Background(), &fakeBackend{err: boom}, "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSplitGCSPath(t *testing.T) {
	bucket, object, err := splitGCSPath("gs://imports/u1/a.csv")
	if err != nil || bucket != "imports" || object != "u1/a.csv" {
		t.Fatalf("got %q %q %v", bucket, object, err)
	}
	if _, _, err := splitGCSPath("gs://imports"); err == nil {
		t.Fatal("expected error for path without object")
	}
}
