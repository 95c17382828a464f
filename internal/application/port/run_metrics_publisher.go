package port

import (
	"context"

	"github.com/dreschagin/views-collector/internal/application/dto"
)

// RunMetricsPublisher records per-invocation counters in an external
// observability platform.
type RunMetricsPublisher interface {
	// PublishRun records the counters of one finished invocation.
	PublishRun(ctx context.Context, summary dto.RunSummaryDTO) error

	// Flush forces immediate publication of any buffered data points.
	// Should be called before the process exits.
	Flush(ctx context.Context) error
}
