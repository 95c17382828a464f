package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/pkg/logger"
)

// ErrNoRunStatus is returned when no invocation has reported status yet.
var ErrNoRunStatus = errors.New("no run status recorded")

// LocalRunStatus returns the last run seen by this process, if any.
type LocalRunStatus func() (dto.RunSummaryDTO, bool)

// GetRunStatusUseCase возвращает сводку последнего запуска с кешированием.
// Сначала читается общий кеш (его пишут все процессы), затем локальное состояние.
type GetRunStatusUseCase struct {
	cache  port.RunStatusCache
	local  LocalRunStatus
	logger *logger.Logger
}

func NewGetRunStatusUseCase(cache port.RunStatusCache, local LocalRunStatus, log *logger.Logger) *GetRunStatusUseCase {
	return &GetRunStatusUseCase{
		cache:  cache,
		local:  local,
		logger: log,
	}
}

// Execute returns the newer of the cached and the local summary.
func (uc *GetRunStatusUseCase) Execute(ctx context.Context) (*dto.RunSummaryDTO, error) {
	var cached *dto.RunSummaryDTO
	if uc.cache != nil {
		summary, err := uc.cache.LastRun(ctx)
		switch {
		case err == nil:
			cached = summary
		case errors.Is(err, port.ErrCacheMiss):
			if uc.logger != nil {
				uc.logger.Debug("Cache miss for run status")
			}
		default:
			if uc.local == nil {
				return nil, fmt.Errorf("failed to read run status: %w", err)
			}
			if uc.logger != nil {
				uc.logger.Warn("Run status cache is unavailable, using local state", "error", err.Error())
			}
		}
	}

	if uc.local != nil {
		if local, ok := uc.local(); ok {
			if cached == nil || local.StartedAt.After(cached.StartedAt) {
				return &local, nil
			}
		}
	}

	if cached != nil {
		return cached, nil
	}
	return nil, ErrNoRunStatus
}
