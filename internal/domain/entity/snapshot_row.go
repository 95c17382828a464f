package entity

import (
	"errors"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/valueobject"
)

// SnapshotRow is one collected item with its metric, the unit of output.
type SnapshotRow struct {
	item        *MediaItem
	metric      valueobject.MetricValue
	collectedAt time.Time
}

func NewSnapshotRow(item *MediaItem, metric valueobject.MetricValue, collectedAt time.Time) (*SnapshotRow, error) {
	if item == nil {
		return nil, errors.New("media item is required")
	}
	if collectedAt.IsZero() {
		return nil, errors.New("collected_at is required")
	}

	return &SnapshotRow{
		item:        item,
		metric:      metric,
		collectedAt: collectedAt.UTC(),
	}, nil
}

func (r *SnapshotRow) Item() *MediaItem {
	return r.item
}

func (r *SnapshotRow) Metric() valueobject.MetricValue {
	return r.metric
}

func (r *SnapshotRow) CollectedAt() time.Time {
	return r.collectedAt
}
