package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
)

type ListRunsCommand struct {
	// PartitionKey wins over At when both are set.
	PartitionKey string
	At           time.Time
	Limit        int
	Cursor       string
}

type ListRunsResult struct {
	PartitionKey string
	Items        []port.RunRecord
	NextCursor   string
}

type ListRunsConfig struct {
	KeyPrefix    string
	BucketWidth  valueobject.BucketWidth
	DefaultLimit int
	MaxLimit     int
}

// ListRunsUseCase reads the run index of one partition bucket.
type ListRunsUseCase struct {
	index  port.RunIndexRepository
	config ListRunsConfig
	logger *logger.Logger
}

func NewListRunsUseCase(index port.RunIndexRepository, config ListRunsConfig, log *logger.Logger) *ListRunsUseCase {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 20
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	return &ListRunsUseCase{
		index:  index,
		config: config,
		logger: log,
	}
}

func (uc *ListRunsUseCase) Execute(ctx context.Context, cmd ListRunsCommand) (*ListRunsResult, error) {
	if uc.index == nil {
		return nil, fmt.Errorf("run index is not configured")
	}

	partition := strings.Trim(strings.TrimSpace(cmd.PartitionKey), "/")
	if partition == "" {
		if cmd.At.IsZero() {
			return nil, fmt.Errorf("partition or at is required")
		}
		partition = valueobject.BuildPartitionKey(uc.config.KeyPrefix, cmd.At, uc.config.BucketWidth).String()
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = uc.config.DefaultLimit
	}
	if limit > uc.config.MaxLimit {
		limit = uc.config.MaxLimit
	}

	page, err := uc.index.ListByPartition(ctx, port.RunListQuery{
		PartitionKey: partition,
		Limit:        limit,
		Cursor:       strings.TrimSpace(cmd.Cursor),
	})
	if err != nil {
		if uc.logger != nil {
			uc.logger.Error("Failed to list runs", err, "partition", partition)
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	items := append([]port.RunRecord(nil), page.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})

	return &ListRunsResult{
		PartitionKey: partition,
		Items:        items,
		NextCursor:   page.NextCursor,
	}, nil
}
