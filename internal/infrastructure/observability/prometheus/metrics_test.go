package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/views-collector/internal/application/dto"
)

func TestMetrics_PublishRun(t *testing.T) {
	m := New(prometheus.NewRegistry())
	finished := time.Date(2025, 10, 2, 12, 7, 45, 0, time.UTC)

	err := m.PublishRun(context.Background(), dto.RunSummaryDTO{
		Outcome:        dto.OutcomeSuccess,
		StopReason:     "cutoff",
		Rows:           5,
		Pages:          2,
		MetricFailures: 1,
		DurationMs:     1500,
		FinishedAt:     finished,
	})
	if err != nil {
		t.Fatalf("PublishRun() error = %v", err)
	}
	_ = m.PublishRun(context.Background(), dto.RunSummaryDTO{Outcome: dto.OutcomeFailure, Pages: 1})

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("success", "cutoff")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("failure", "")); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RowsTotal); got != 5 {
		t.Errorf("rows = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.PagesTotal); got != 3 {
		t.Errorf("pages = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LastSuccessUnix); got != float64(finished.Unix()) {
		t.Errorf("last success = %v, want %d", got, finished.Unix())
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/collector/run", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/collector/run", "POST", "202")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/healthz":                  "/healthz",
		"/api/v1/collector/summary": "/api/v1/collector/summary",
		"/api/v2/unknown":           "/api/*",
		"/favicon.ico":              "other",
	}
	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
