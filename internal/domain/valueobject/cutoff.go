package valueobject

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used by the content API for
// item creation times and by the collector for collected_at.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// DefaultCutoff excludes everything created before 2025-10-02 00:00 KST.
const DefaultCutoff = "2025-10-01T15:00:00+0000"

// Cutoff is the boundary older items are never collected past (Value Object).
//
// Comparison is lexicographic on the raw string. That is only sound because both
// sides share TimestampLayout with a +0000 offset, which NewCutoff enforces for
// the boundary. Traversal additionally relies on the API returning items newest
// first; an out-of-order item older than the boundary stops the walk early.
type Cutoff struct {
	raw string
}

// NewCutoff validates the boundary string.
func NewCutoff(raw string) (Cutoff, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return Cutoff{}, fmt.Errorf("cutoff must match %s: %w", TimestampLayout, err)
	}

	if _, offset := parsed.Zone(); offset != 0 {
		return Cutoff{}, fmt.Errorf("cutoff must be expressed in UTC (+0000), got %q", raw)
	}

	return Cutoff{raw: raw}, nil
}

// Excludes reports whether an item timestamp falls before the boundary. Empty
// timestamps never trigger the cutoff.
func (c Cutoff) Excludes(timestamp string) bool {
	if timestamp == "" || c.raw == "" {
		return false
	}
	return timestamp < c.raw
}

func (c Cutoff) String() string {
	return c.raw
}

// FormatTimestamp renders t in TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
