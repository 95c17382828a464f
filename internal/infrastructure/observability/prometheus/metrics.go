package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
)

// Metrics bundles prometheus collectors used by the collector daemon.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RowsTotal          prometheus.Counter
	PagesTotal         prometheus.Counter
	MetricFailures     prometheus.Counter
	RunDurationSec     prometheus.Histogram
	LastSuccessUnix    prometheus.Gauge
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
}

var _ port.RunMetricsPublisher = (*Metrics)(nil)

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_runs_total",
			Help: "Total number of collector invocations by outcome.",
		}, []string{"outcome", "stop_reason"}),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_snapshot_rows_total",
			Help: "Total number of snapshot rows written.",
		}),
		PagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_pages_fetched_total",
			Help: "Total number of media pages fetched.",
		}),
		MetricFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_metric_fetch_failures_total",
			Help: "Total number of metric fetches recorded as empty values.",
		}),
		RunDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_run_duration_seconds",
			Help:    "Collector invocation duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_last_success_timestamp_seconds",
			Help: "Unix time of the last successful snapshot write.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_http_requests_total",
			Help: "Total number of daemon HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_http_request_duration_seconds",
			Help:    "Daemon HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_auth_failures_total",
			Help: "Total number of rejected bearer tokens.",
		}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RowsTotal,
		m.PagesTotal,
		m.MetricFailures,
		m.RunDurationSec,
		m.LastSuccessUnix,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
	)

	return m
}

// PublishRun updates the run collectors. It never fails.
func (m *Metrics) PublishRun(_ context.Context, summary dto.RunSummaryDTO) error {
	m.RunsTotal.WithLabelValues(summary.Outcome, summary.StopReason).Inc()
	m.RowsTotal.Add(float64(summary.Rows))
	m.PagesTotal.Add(float64(summary.Pages))
	m.MetricFailures.Add(float64(summary.MetricFailures))
	m.RunDurationSec.Observe(time.Duration(summary.DurationMs * int64(time.Millisecond)).Seconds())
	if summary.Succeeded() {
		m.LastSuccessUnix.Set(float64(summary.FinishedAt.Unix()))
	}
	return nil
}

// Flush is a no-op: collectors are scraped, not pushed.
func (m *Metrics) Flush(context.Context) error {
	return nil
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

func normalizeRoute(path string) string {
	switch {
	case path == "/healthz", path == "/readyz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/collector/"):
		return path
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
