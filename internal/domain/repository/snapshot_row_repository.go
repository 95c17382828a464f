package repository

import (
	"context"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/entity"
)

// SnapshotRowRepository хранит строки снапшотов как временной ряд (Port).
// Реализация в Infrastructure слое.
type SnapshotRowRepository interface {
	// SaveBatch сохраняет все строки одного запуска одной транзакцией
	SaveBatch(ctx context.Context, invocationID string, rows []*entity.SnapshotRow) error

	// CountSince возвращает количество строк, собранных после указанного времени
	CountSince(ctx context.Context, since time.Time) (int64, error)
}
