package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/internal/infrastructure/observability/prometheus"
)

type fakeRunIndex struct {
	query port.RunListQuery
	page  port.RunListPage
	err   error
}

func (f *fakeRunIndex) Put(context.Context, port.RunRecord) error { return nil }

func (f *fakeRunIndex) ListByPartition(_ context.Context, query port.RunListQuery) (port.RunListPage, error) {
	f.query = query
	return f.page, f.err
}

func newTestHandler(t *testing.T, collector *fakeCollector, index *fakeRunIndex) (*Runner, http.Handler) {
	t.Helper()

	r, err := NewRunner(collector, "", time.Minute, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	var listRuns *usecase.ListRunsUseCase
	if index != nil {
		width, _ := valueobject.NewBucketWidth(10 * time.Minute)
		listRuns = usecase.NewListRunsUseCase(index, usecase.ListRunsConfig{
			KeyPrefix:   "ig",
			BucketWidth: width,
		}, testLogger())
	}

	status := usecase.NewGetRunStatusUseCase(nil, r.LastSummary, testLogger())
	h := NewHandler(r, status, listRuns, promhttp.HandlerFor(prom.NewRegistry(), promhttp.HandlerOpts{}))
	return r, h.Routes()
}

func TestHandler_Healthz(t *testing.T) {
	_, h := newTestHandler(t, &fakeCollector{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", w.Code)
	}
}

func TestHandler_ReadyzFollowsRuns(t *testing.T) {
	collector := &fakeCollector{result: successResult(1)}
	_, h := newTestHandler(t, collector, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before run = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/collector/run", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status after run = %d", w.Code)
	}
}

func TestHandler_RunNowFailure(t *testing.T) {
	collector := &fakeCollector{err: &usecase.InvocationError{
		Kind:         usecase.KindPageFetch,
		Message:      "HTTP 500",
		InvocationID: "abc",
	}}
	_, h := newTestHandler(t, collector, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/collector/run", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["kind"] != usecase.KindPageFetch || body["invocation_id"] != "abc" {
		t.Errorf("body = %v", body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/run", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", w.Code)
	}
}

func TestHandler_Summary(t *testing.T) {
	_, h := newTestHandler(t, &fakeCollector{result: successResult(7)}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/summary", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var empty Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatal(err)
	}
	if empty.LastSummary != nil {
		t.Errorf("LastSummary = %+v before any run", empty.LastSummary)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/collector/run", nil))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/summary", nil))
	var snapshot Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.LastSummary == nil || snapshot.LastSummary.Rows != 7 {
		t.Errorf("LastSummary = %+v", snapshot.LastSummary)
	}
	if snapshot.Schedule != DefaultSchedule {
		t.Errorf("Schedule = %q", snapshot.Schedule)
	}
}

func TestHandler_RunsDisabled(t *testing.T) {
	_, h := newTestHandler(t, &fakeCollector{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/runs", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestHandler_Runs(t *testing.T) {
	index := &fakeRunIndex{page: port.RunListPage{
		Items: []port.RunRecord{
			{InvocationID: "old", StartedAt: time.Date(2025, 10, 2, 12, 1, 0, 0, time.UTC)},
			{InvocationID: "new", StartedAt: time.Date(2025, 10, 2, 12, 7, 0, 0, time.UTC)},
		},
		NextCursor: "next",
	}}
	_, h := newTestHandler(t, &fakeCollector{}, index)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/runs?at=2025-10-02T12:07:43Z&limit=5&cursor=abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	if index.query.PartitionKey != "ig/date=2025-10-02/hour=12/minute=00/snapshot" {
		t.Errorf("partition = %q", index.query.PartitionKey)
	}
	if index.query.Limit != 5 || index.query.Cursor != "abc" {
		t.Errorf("query = %+v", index.query)
	}

	var result usecase.ListRunsResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 2 || result.Items[0].InvocationID != "new" || result.NextCursor != "next" {
		t.Errorf("result = %+v", result)
	}
}

func TestHandler_RunsBadInput(t *testing.T) {
	index := &fakeRunIndex{err: errors.New("cursor does not belong to partition")}
	_, h := newTestHandler(t, &fakeCollector{}, index)

	for _, target := range []string{
		"/api/v1/collector/runs?limit=zero",
		"/api/v1/collector/runs?at=yesterday",
		"/api/v1/collector/runs?partition=ig/date=2025-10-02/hour=12/minute=00/snapshot&cursor=bad",
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestHandler_Metrics(t *testing.T) {
	_, h := newTestHandler(t, &fakeCollector{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuth(t *testing.T) {
	metrics := prometheus.New(prom.NewRegistry())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Auth(AuthConfig{
		Enabled:     true,
		BearerToken: "secret",
		OnFailure:   metrics.AuthFailures.Inc,
	}, testLogger())(next)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is open", "/healthz", "", http.StatusOK},
		{"ready is open", "/readyz", "", http.StatusOK},
		{"metrics is open", "/metrics", "", http.StatusOK},
		{"missing token", "/api/v1/collector/summary", "", http.StatusUnauthorized},
		{"wrong token", "/api/v1/collector/summary", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/collector/summary", "Basic secret", http.StatusUnauthorized},
		{"valid token", "/api/v1/collector/summary", "Bearer secret", http.StatusOK},
		{"case-insensitive scheme", "/api/v1/collector/summary", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(metrics.AuthFailures); got != 3 {
		t.Errorf("auth failures = %v, want 3", got)
	}
}

func TestAuthDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Auth(AuthConfig{Enabled: false}, testLogger())(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collector/summary", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
		w.WriteHeader(http.StatusAccepted)
	})
	h := RequestID(Logger(testLogger())(next))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || w.Header().Get(requestIDHeader) != seen {
		t.Errorf("generated id = %q, header = %q", seen, w.Header().Get(requestIDHeader))
	}
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "given")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != "given" {
		t.Errorf("propagated id = %q", seen)
	}

}
