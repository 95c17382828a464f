package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/pkg/retry"
)

const DefaultPageSize = 100

// PageFetchError means a media page could not be read within the retry
// budget. It is fatal to the whole traversal.
type PageFetchError struct {
	Page   int
	Cursor string
	Err    error
}

func (e *PageFetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("failed to fetch media page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("failed to fetch media page %d (after=%s): %v", e.Page, e.Cursor, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// MediaPageFetcher reads one page of media through the retry policy.
type MediaPageFetcher struct {
	source   port.MediaSource
	policy   retry.Policy
	pageSize int
}

func NewMediaPageFetcher(source port.MediaSource, policy retry.Policy, pageSize int) *MediaPageFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MediaPageFetcher{
		source:   source,
		policy:   policy,
		pageSize: pageSize,
	}
}

// Fetch returns page number page (1-based, used for error context only).
// An empty cursor requests the newest page.
func (f *MediaPageFetcher) Fetch(ctx context.Context, page int, cursor string) (port.MediaPage, error) {
	result, err := retry.Do(ctx, f.policy, func(ctx context.Context) (port.MediaPage, error) {
		return f.source.FetchMediaPage(ctx, cursor, f.pageSize)
	})
	if err != nil {
		return port.MediaPage{}, &PageFetchError{Page: page, Cursor: cursor, Err: err}
	}
	return result, nil
}
