package port

import (
	"context"
	"time"
)

// RunRecord is the index entry of one invocation.
type RunRecord struct {
	InvocationID   string
	PartitionKey   string
	ObjectKey      string
	Location       string
	Outcome        string
	StopReason     string
	ErrorKind      string
	ErrorMessage   string
	Rows           int
	Pages          int
	MetricFailures int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunListQuery selects the runs recorded for one partition bucket.
type RunListQuery struct {
	PartitionKey string
	Limit        int
	Cursor       string
}

// RunListPage содержит результат выборки и курсор следующей страницы.
type RunListPage struct {
	Items      []RunRecord
	NextCursor string
}

// RunIndexRepository хранит историю запусков по бакетам партиций.
type RunIndexRepository interface {
	Put(ctx context.Context, record RunRecord) error
	ListByPartition(ctx context.Context, query RunListQuery) (RunListPage, error)
}
