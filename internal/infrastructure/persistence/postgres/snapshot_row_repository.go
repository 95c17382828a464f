package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/repository"
	_ "github.com/lib/pq"
)

// Schema создает таблицу строк снимков, если ее еще нет
const Schema = `
CREATE TABLE IF NOT EXISTS media_view_snapshots (
	invocation_id      TEXT        NOT NULL,
	media_id           TEXT        NOT NULL,
	media_type         TEXT        NOT NULL,
	creation_timestamp TEXT        NOT NULL,
	caption            TEXT        NOT NULL DEFAULT '',
	permalink          TEXT        NOT NULL DEFAULT '',
	metric_value       BIGINT,
	collected_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (invocation_id, media_id)
);
CREATE INDEX IF NOT EXISTS idx_media_view_snapshots_collected_at
	ON media_view_snapshots (collected_at DESC);
`

const insertSnapshotRow = `
	INSERT INTO media_view_snapshots (
		invocation_id, media_id, media_type, creation_timestamp,
		caption, permalink, metric_value, collected_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (invocation_id, media_id) DO NOTHING
`

// PostgresSnapshotRowRepository реализует repository.SnapshotRowRepository для PostgreSQL
type PostgresSnapshotRowRepository struct {
	db *sql.DB
}

var _ repository.SnapshotRowRepository = (*PostgresSnapshotRowRepository)(nil)

// NewPostgresSnapshotRowRepository создает новый PostgreSQL repository
func NewPostgresSnapshotRowRepository(db *sql.DB) *PostgresSnapshotRowRepository {
	return &PostgresSnapshotRowRepository{
		db: db,
	}
}

// EnsureSchema применяет Schema
func (r *PostgresSnapshotRowRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveBatch сохраняет строки одного запуска одной транзакцией
func (r *PostgresSnapshotRowRepository) SaveBatch(
	ctx context.Context,
	invocationID string,
	rows []*entity.SnapshotRow,
) error {
	if len(rows) == 0 {
		return nil
	}
	if invocationID == "" {
		return fmt.Errorf("invocation id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertSnapshotRow)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if row == nil {
			continue
		}
		model := ToDBModel(invocationID, row)
		if _, err := stmt.ExecContext(ctx, model.args()...); err != nil {
			return fmt.Errorf("failed to insert snapshot row %s: %w", model.MediaID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CountSince возвращает количество строк, собранных начиная с since
func (r *PostgresSnapshotRowRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM media_view_snapshots
		WHERE collected_at >= $1
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshot rows: %w", err)
	}

	return count, nil
}
