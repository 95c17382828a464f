package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/views-collector/internal/application/port"
)

type capturedRequest struct {
	method             string
	path               string
	contentType        string
	contentDisposition string
	body               string
}

func newFakeS3(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			method:             r.Method,
			path:               r.URL.Path,
			contentType:        r.Header.Get("Content-Type"),
			contentDisposition: r.Header.Get("Content-Disposition"),
			body:               string(body),
		})
		mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func newTestStorage(t *testing.T, endpoint string) *SnapshotStorage {
	t.Helper()
	storage, err := NewSnapshotStorage(context.Background(), Config{
		Bucket:          "snapshots",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewSnapshotStorage() error = %v", err)
	}
	return storage
}

func TestSnapshotStorage_PutObject(t *testing.T) {
	server, requests := newFakeS3(t, http.StatusOK)
	storage := newTestStorage(t, server.URL)

	key := "insta-views/date=2025-10-02/hour=12/minute=00/snapshot.csv"
	location, err := storage.PutObject(context.Background(), port.SnapshotObject{
		Key:                key,
		ContentType:        "text/csv; charset=utf-8",
		ContentDisposition: "attachment; filename=snapshot.csv",
		Body:               []byte("id,type\n"),
	})
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}

	if location != "s3://snapshots/"+key {
		t.Fatalf("location = %q", location)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].method != http.MethodPut || got[0].path != "/snapshots/"+key {
		t.Fatalf("unexpected request %s %s", got[0].method, got[0].path)
	}
	if got[0].contentType != "text/csv; charset=utf-8" || got[0].contentDisposition != "attachment; filename=snapshot.csv" {
		t.Fatalf("unexpected headers %+v", got[0])
	}
	if !strings.Contains(got[0].body, "id,type") {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

func TestSnapshotStorage_PutObjectError(t *testing.T) {
	server, _ := newFakeS3(t, http.StatusForbidden)
	storage := newTestStorage(t, server.URL)

	_, err := storage.PutObject(context.Background(), port.SnapshotObject{Key: "k.csv", Body: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "put object failed") {
		t.Fatalf("expected put object error, got %v", err)
	}
}

func TestSnapshotStorage_Validation(t *testing.T) {
	if _, err := NewSnapshotStorage(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}

	storage := newTestStorage(t, "http://127.0.0.1:1")
	if _, err := storage.PutObject(context.Background(), port.SnapshotObject{Key: " "}); err == nil {
		t.Fatalf("expected error for empty key")
	}

	url, err := storage.ObjectURL(context.Background(), "a/b.csv")
	if err != nil {
		t.Fatalf("ObjectURL() error = %v", err)
	}
	if !strings.Contains(url, "/snapshots/a/b.csv") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url %q", url)
	}
}
