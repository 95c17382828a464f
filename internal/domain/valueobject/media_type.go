package valueobject

import (
	"errors"
	"sort"
	"strings"
)

// MediaType is the kind of a media item as reported by the content API.
type MediaType string

const (
	Image         MediaType = "IMAGE"
	Video         MediaType = "VIDEO"
	CarouselAlbum MediaType = "CAROUSEL_ALBUM"
)

// Validate reports whether the type belongs to the collected enumeration.
func (mt MediaType) Validate() error {
	switch mt {
	case Image, Video, CarouselAlbum:
		return nil
	default:
		return errors.New("invalid media type")
	}
}

func (mt MediaType) String() string {
	return string(mt)
}

// AllMediaTypes returns every type the collector knows how to record.
func AllMediaTypes() []MediaType {
	return []MediaType{Image, Video, CarouselAlbum}
}

// MediaTypeSet is the allow-list applied during traversal.
type MediaTypeSet map[MediaType]struct{}

// NewMediaTypeSet builds an allow-list. Unknown types are rejected so a typo in
// configuration cannot silently drop every item.
func NewMediaTypeSet(types ...MediaType) (MediaTypeSet, error) {
	if len(types) == 0 {
		return nil, errors.New("at least one media type is required")
	}

	set := make(MediaTypeSet, len(types))
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, errors.New("invalid media type: " + string(t))
		}
		set[t] = struct{}{}
	}
	return set, nil
}

// ParseMediaTypeSet parses a comma separated list such as "IMAGE,VIDEO".
func ParseMediaTypeSet(raw string) (MediaTypeSet, error) {
	types := make([]MediaType, 0, 3)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		types = append(types, MediaType(part))
	}
	return NewMediaTypeSet(types...)
}

// Contains is false for the empty or unknown type.
func (s MediaTypeSet) Contains(mt MediaType) bool {
	_, ok := s[mt]
	return ok
}

// Sorted returns the members in a stable order, for logs.
func (s MediaTypeSet) Sorted() []MediaType {
	out := make([]MediaType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
