package usecase

import (
	"context"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
	"github.com/dreschagin/views-collector/pkg/retry"
)

const DefaultMetricName = "views"

// MetricOutcome is the result of one metric fetch. A failed fetch is not an
// error for the caller: Value is absent and Failure holds the cause.
type MetricOutcome struct {
	MediaID string
	Value   valueobject.MetricValue
	Failure error
}

func (o MetricOutcome) Failed() bool {
	return o.Failure != nil
}

// MetricFetcher reads one engagement metric per media item and never aborts
// the traversal on failure.
type MetricFetcher struct {
	source port.MediaSource
	policy retry.Policy
	metric string
	logger *logger.Logger
}

func NewMetricFetcher(source port.MediaSource, policy retry.Policy, metric string, log *logger.Logger) *MetricFetcher {
	if metric == "" {
		metric = DefaultMetricName
	}
	return &MetricFetcher{
		source: source,
		policy: policy,
		metric: metric,
		logger: log,
	}
}

func (f *MetricFetcher) Metric() string {
	return f.metric
}

func (f *MetricFetcher) Fetch(ctx context.Context, mediaID string) MetricOutcome {
	value, err := retry.Do(ctx, f.policy, func(ctx context.Context) (valueobject.MetricValue, error) {
		return f.source.FetchMetric(ctx, mediaID, f.metric)
	})
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("Metric fetch failed, recording empty value",
				"media_id", mediaID,
				"metric", f.metric,
				"error", err.Error(),
			)
		}
		return MetricOutcome{
			MediaID: mediaID,
			Value:   valueobject.AbsentMetricValue(),
			Failure: err,
		}
	}

	return MetricOutcome{MediaID: mediaID, Value: value}
}
