package dto

import "time"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// RunSummaryDTO описывает результат одного запуска сборщика.
// Используется для кэша статуса, метрик и HTTP ответов демона.
type RunSummaryDTO struct {
	InvocationID   string    `json:"invocation_id"`
	Outcome        string    `json:"outcome"` // "success", "failure"
	StopReason     string    `json:"stop_reason,omitempty"`
	Rows           int       `json:"rows"`
	Pages          int       `json:"pages"`
	MetricFailures int       `json:"metric_failures"`
	SkippedItems   int       `json:"skipped_items"`
	PartitionKey   string    `json:"partition_key,omitempty"`
	ObjectKey      string    `json:"object_key,omitempty"`
	Location       string    `json:"location,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMs     int64     `json:"duration_ms"`
}

// Succeeded reports whether the run wrote its snapshot.
func (s RunSummaryDTO) Succeeded() bool {
	return s.Outcome == OutcomeSuccess
}

// SnapshotEventDTO is published after a snapshot object has been written.
type SnapshotEventDTO struct {
	InvocationID string    `json:"invocation_id"`
	PartitionKey string    `json:"partition_key"`
	ObjectKey    string    `json:"object_key"`
	Location     string    `json:"location"`
	Rows         int       `json:"rows"`
	CollectedAt  time.Time `json:"collected_at"`
}

// NewSnapshotEventDTO создает событие из сводки успешного запуска
func NewSnapshotEventDTO(summary RunSummaryDTO) SnapshotEventDTO {
	return SnapshotEventDTO{
		InvocationID: summary.InvocationID,
		PartitionKey: summary.PartitionKey,
		ObjectKey:    summary.ObjectKey,
		Location:     summary.Location,
		Rows:         summary.Rows,
		CollectedAt:  summary.StartedAt,
	}
}
