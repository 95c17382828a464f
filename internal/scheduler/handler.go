package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dreschagin/views-collector/internal/application/usecase"
)

type Handler struct {
	runner   *Runner
	status   *usecase.GetRunStatusUseCase
	listRuns *usecase.ListRunsUseCase
	metrics  http.Handler
}

// NewHandler wires the daemon endpoints. listRuns and metrics may be nil.
func NewHandler(
	runner *Runner,
	status *usecase.GetRunStatusUseCase,
	listRuns *usecase.ListRunsUseCase,
	metrics http.Handler,
) *Handler {
	return &Handler{
		runner:   runner,
		status:   status,
		listRuns: listRuns,
		metrics:  metrics,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/readyz", h.readyz)
	mux.HandleFunc("/api/v1/collector/summary", h.summary)
	mux.HandleFunc("/api/v1/collector/run", h.runNow)
	mux.HandleFunc("/api/v1/collector/runs", h.runs)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}

	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.runner.Snapshot()

	lastRun := ""
	if !snapshot.LastRunAt.IsZero() {
		lastRun = snapshot.LastRunAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"uptime":     time.Since(snapshot.StartedAt).Round(time.Second).String(),
		"last_run":   lastRun,
		"last_error": snapshot.LastError,
	})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ok, reason := h.runner.Ready(); !ok {
		http.Error(w, "not ready: "+reason, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.runner.Snapshot()
	if h.status != nil {
		summary, err := h.status.Execute(r.Context())
		switch {
		case err == nil:
			snapshot.LastSummary = summary
		case errors.Is(err, usecase.ErrNoRunStatus):
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The run outlives a client disconnect; the runner applies its own timeout.
	summary, err := h.runner.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		response := map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
		var invErr *usecase.InvocationError
		if errors.As(err, &invErr) {
			response["kind"] = invErr.Kind
			response["invocation_id"] = invErr.InvocationID
		}
		writeJSON(w, http.StatusInternalServerError, response)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.listRuns == nil {
		http.Error(w, "run index is disabled", http.StatusNotImplemented)
		return
	}

	query := r.URL.Query()
	cmd := usecase.ListRunsCommand{
		PartitionKey: query.Get("partition"),
		Cursor:       query.Get("cursor"),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		cmd.Limit = limit
	}

	if raw := query.Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid at: expected RFC3339", http.StatusBadRequest)
			return
		}
		cmd.At = at
	} else if cmd.PartitionKey == "" {
		cmd.At = time.Now().UTC()
	}

	result, err := h.listRuns.Execute(r.Context(), cmd)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}
