package port

import (
	"context"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is one structured log line forwarded to an external log system.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{}
}

// LogPublisher ships log entries out of process (CloudWatch Logs).
type LogPublisher interface {
	Publish(ctx context.Context, entry LogEntry) error

	// PublishBatch sends several entries at once; implementations split
	// batches that exceed the backend's request limits.
	PublishBatch(ctx context.Context, entries []LogEntry) error

	// Flush sends anything still buffered. Call it before the process exits.
	Flush(ctx context.Context) error
}
