package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const DefaultMaxPages = 50

// StopReason explains why a traversal reached DONE.
type StopReason string

const (
	StopNoMore   StopReason = "no_more"
	StopCutoff   StopReason = "cutoff"
	StopMaxPages StopReason = "max_pages"
)

// TraversalConfig is built once per invocation and passed in explicitly.
type TraversalConfig struct {
	Cutoff       valueobject.Cutoff
	MaxPages     int
	AllowedTypes valueobject.MediaTypeSet
}

func (c TraversalConfig) Validate() error {
	if c.Cutoff.String() == "" {
		return errors.New("cutoff is required")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1, got %d", c.MaxPages)
	}
	if len(c.AllowedTypes) == 0 {
		return errors.New("allowed media types must not be empty")
	}
	return nil
}

type TraversalResult struct {
	Rows           []*entity.SnapshotRow
	Pages          int
	SkippedItems   int
	MetricFailures int
	StopReason     StopReason
}

// TraverseMediaUseCase walks the media pages newest first and stops at the
// first item older than the cutoff. Items must arrive in descending
// timestamp order for that stop to be correct.
type TraverseMediaUseCase struct {
	pages   *MediaPageFetcher
	metrics *MetricFetcher
	config  TraversalConfig
	logger  *logger.Logger
}

func NewTraverseMediaUseCase(
	pages *MediaPageFetcher,
	metrics *MetricFetcher,
	config TraversalConfig,
	log *logger.Logger,
) (*TraverseMediaUseCase, error) {
	if pages == nil || metrics == nil {
		return nil, errors.New("page and metric fetchers are required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid traversal config: %w", err)
	}

	return &TraverseMediaUseCase{
		pages:   pages,
		metrics: metrics,
		config:  config,
		logger:  log,
	}, nil
}

// Execute runs one full traversal. collectedAt is stamped on every row.
// The only error it returns is a *PageFetchError.
func (uc *TraverseMediaUseCase) Execute(ctx context.Context, collectedAt time.Time) (*TraversalResult, error) {
	result := &TraversalResult{Rows: make([]*entity.SnapshotRow, 0)}

	cursor := ""
	advanced := 0
	for {
		page, err := uc.pages.Fetch(ctx, result.Pages+1, cursor)
		if err != nil {
			return nil, err
		}
		result.Pages++

		if len(page.Items) == 0 {
			result.StopReason = StopNoMore
			return result, nil
		}

		if uc.collectPage(ctx, page.Items, collectedAt, result) {
			result.StopReason = StopCutoff
			return result, nil
		}

		if page.NextCursor == "" {
			result.StopReason = StopNoMore
			return result, nil
		}

		advanced++
		if advanced >= uc.config.MaxPages {
			if uc.logger != nil {
				uc.logger.Info("Page cap reached, stopping traversal",
					"max_pages", uc.config.MaxPages,
					"rows", len(result.Rows),
				)
			}
			result.StopReason = StopMaxPages
			return result, nil
		}

		cursor = page.NextCursor
	}
}

// collectPage appends rows for qualifying items in page order and reports
// whether an item older than the cutoff was reached.
func (uc *TraverseMediaUseCase) collectPage(
	ctx context.Context,
	items []*entity.MediaItem,
	collectedAt time.Time,
	result *TraversalResult,
) bool {
	for _, item := range items {
		if item == nil {
			continue
		}

		if uc.config.Cutoff.Excludes(item.Timestamp()) {
			if uc.logger != nil {
				uc.logger.Debug("Cutoff reached",
					"media_id", item.ID(),
					"timestamp", item.Timestamp(),
					"cutoff", uc.config.Cutoff.String(),
				)
			}
			return true
		}

		if !uc.config.AllowedTypes.Contains(item.Type()) {
			result.SkippedItems++
			continue
		}

		outcome := uc.metrics.Fetch(ctx, item.ID())
		if outcome.Failed() {
			result.MetricFailures++
		}

		row, err := entity.NewSnapshotRow(item, outcome.Value, collectedAt)
		if err != nil {
			// only reachable with a zero collectedAt
			if uc.logger != nil {
				uc.logger.Warn("Skipping row", "media_id", item.ID(), "error", err.Error())
			}
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	return false
}
