package port

import (
	"context"

	"github.com/dreschagin/views-collector/internal/application/dto"
)

// EventPublisher announces written snapshots to a message broker.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, event dto.SnapshotEventDTO) error

	// Close closes the connection to the message broker
	Close() error
}
