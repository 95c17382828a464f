package service

import (
	"errors"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
)

// SnapshotColumns is the fixed output column order.
var SnapshotColumns = []string{
	"id",
	"type",
	"creation_timestamp",
	"caption",
	"permalink",
	"metric_value",
	"collected_at",
}

// Snapshot is the finalized tabular record of one invocation.
type Snapshot struct {
	Columns     []string
	Records     [][]string
	CollectedAt time.Time
}

// Len returns the number of data records, header excluded.
func (s *Snapshot) Len() int {
	return len(s.Records)
}

// SnapshotBuilder собирает строки запуска в таблицу фиксированной схемы (Domain Service)
type SnapshotBuilder struct{}

func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{}
}

// Build keeps row order. Zero rows yields a header-only snapshot.
func (b *SnapshotBuilder) Build(rows []*entity.SnapshotRow, collectedAt time.Time) (*Snapshot, error) {
	if collectedAt.IsZero() {
		return nil, errors.New("collected_at cannot be zero")
	}

	snapshot := &Snapshot{
		Columns:     append([]string(nil), SnapshotColumns...),
		Records:     make([][]string, 0, len(rows)),
		CollectedAt: collectedAt.UTC(),
	}

	for _, row := range rows {
		if row == nil {
			return nil, errors.New("snapshot row cannot be nil")
		}

		item := row.Item()
		snapshot.Records = append(snapshot.Records, []string{
			item.ID(),
			item.Type().String(),
			item.Timestamp(),
			item.Caption(),
			item.Permalink(),
			row.Metric().String(),
			valueobject.FormatTimestamp(row.CollectedAt()),
		})
	}

	return snapshot, nil
}
