package port

import (
	"context"

	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
)

// MediaPage is one page of the account's media, newest first.
// An empty NextCursor means there are no further pages.
type MediaPage struct {
	Items      []*entity.MediaItem
	NextCursor string
}

// MediaSource определяет интерфейс удаленного API контента (Port)
// Реализация в Infrastructure слое (Graph API client)
type MediaSource interface {
	// FetchMediaPage returns one page. An empty cursor requests the first page.
	FetchMediaPage(ctx context.Context, cursor string, limit int) (MediaPage, error)

	// FetchMetric returns the named metric of one media item, absent when the
	// API reports no value.
	FetchMetric(ctx context.Context, mediaID, metric string) (valueobject.MetricValue, error)
}
