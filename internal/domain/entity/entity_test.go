package entity

import (
	"testing"
	"time"

	"github.com/dreschagin/views-collector/internal/domain/valueobject"
)

func TestNewMediaItem_NormalizesFields(t *testing.T) {
	item, err := NewMediaItem(
		" 17895695668004550 ",
		valueobject.Video,
		"2025-10-02T09:00:00+0000",
		"line one\r\nline two\nline three\rend",
		" https://www.instagram.com/reel/abc/ ",
	)
	if err != nil {
		t.Fatalf("NewMediaItem() error = %v", err)
	}

	if item.ID() != "17895695668004550" {
		t.Errorf("ID() = %q", item.ID())
	}
	if item.Caption() != "line one line two line three end" {
		t.Errorf("Caption() = %q", item.Caption())
	}
	if item.Permalink() != "https://www.instagram.com/reel/abc/" {
		t.Errorf("Permalink() = %q", item.Permalink())
	}
	if item.Type() != valueobject.Video {
		t.Errorf("Type() = %q", item.Type())
	}
}

func TestNewMediaItem_RequiresID(t *testing.T) {
	if _, err := NewMediaItem("  ", valueobject.Image, "", "", ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestNewSnapshotRow(t *testing.T) {
	item, _ := NewMediaItem("1", valueobject.Image, "2025-10-02T09:00:00+0000", "", "")
	kst := time.FixedZone("KST", 9*60*60)

	row, err := NewSnapshotRow(item, valueobject.AbsentMetricValue(), time.Date(2025, 10, 2, 21, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("NewSnapshotRow() error = %v", err)
	}
	if row.CollectedAt().Location() != time.UTC || row.CollectedAt().Hour() != 12 {
		t.Fatalf("collected_at not normalized to UTC: %v", row.CollectedAt())
	}

	if _, err := NewSnapshotRow(nil, valueobject.AbsentMetricValue(), time.Now()); err == nil {
		t.Fatalf("expected error for nil item")
	}
	if _, err := NewSnapshotRow(item, valueobject.AbsentMetricValue(), time.Time{}); err == nil {
		t.Fatalf("expected error for zero collected_at")
	}
}
