package postgres

import (
	"database/sql"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/entity"
)

// SnapshotRowDBModel представляет строку снимка в БД
type SnapshotRowDBModel struct {
	InvocationID      string
	MediaID           string
	MediaType         string
	CreationTimestamp string
	Caption           string
	Permalink         string
	MetricValue       sql.NullInt64
	CollectedAt       time.Time
}

// ToDBModel конвертирует строку снимка в DB Model. Отсутствующее значение
// метрики сохраняется как NULL.
func ToDBModel(invocationID string, row *entity.SnapshotRow) *SnapshotRowDBModel {
	item := row.Item()
	metric := sql.NullInt64{}
	if value, ok := row.Metric().Get(); ok {
		metric = sql.NullInt64{Int64: value, Valid: true}
	}

	return &SnapshotRowDBModel{
		InvocationID:      invocationID,
		MediaID:           item.ID(),
		MediaType:         item.Type().String(),
		CreationTimestamp: item.Timestamp(),
		Caption:           item.Caption(),
		Permalink:         item.Permalink(),
		MetricValue:       metric,
		CollectedAt:       row.CollectedAt(),
	}
}

func (m *SnapshotRowDBModel) args() []interface{} {
	return []interface{}{
		m.InvocationID,
		m.MediaID,
		m.MediaType,
		m.CreationTimestamp,
		m.Caption,
		m.Permalink,
		m.MetricValue,
		m.CollectedAt,
	}
}
