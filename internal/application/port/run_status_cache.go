package port

import (
	"context"
	"errors"

	"github.com/dreschagin/views-collector/internal/application/dto"
)

// ErrCacheMiss is returned when no run status has been stored yet.
var ErrCacheMiss = errors.New("cache miss: key not found")

// RunStatusCache keeps the summary of the most recent invocation so that
// processes other than the one that ran it can report status.
type RunStatusCache interface {
	SaveLastRun(ctx context.Context, summary dto.RunSummaryDTO) error

	// LastRun returns ErrCacheMiss when nothing is stored.
	LastRun(ctx context.Context) (*dto.RunSummaryDTO, error)

	Close() error
}
