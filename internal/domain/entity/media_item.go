package entity

import (
	"errors"
	"strings"

	"github.com/dreschagin/views-collector/internal/domain/valueobject"
)

var captionLineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// MediaItem is one post read from the content API. Immutable once built.
type MediaItem struct {
	id        string
	mediaType valueobject.MediaType
	timestamp string
	caption   string
	permalink string
}

// NewMediaItem builds an item from API fields. The id stays text so large
// numeric identifiers never lose precision; caption line breaks become spaces.
func NewMediaItem(
	id string,
	mediaType valueobject.MediaType,
	timestamp string,
	caption string,
	permalink string,
) (*MediaItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("media id is required")
	}

	return &MediaItem{
		id:        id,
		mediaType: valueobject.MediaType(strings.TrimSpace(string(mediaType))),
		timestamp: strings.TrimSpace(timestamp),
		caption:   captionLineBreaks.Replace(caption),
		permalink: strings.TrimSpace(permalink),
	}, nil
}

func (m *MediaItem) ID() string {
	return m.id
}

// Type may be outside the known enumeration; traversal filters on it.
func (m *MediaItem) Type() valueobject.MediaType {
	return m.mediaType
}

// Timestamp is the raw creation time string, e.g. 2025-10-02T09:00:00+0000.
func (m *MediaItem) Timestamp() string {
	return m.timestamp
}

func (m *MediaItem) Caption() string {
	return m.caption
}

func (m *MediaItem) Permalink() string {
	return m.permalink
}
