package valueobject

import (
	"testing"
	"time"
)

func TestBuildPartitionKey_FloorsToBucket(t *testing.T) {
	width, err := NewBucketWidth(10 * time.Minute)
	if err != nil {
		t.Fatalf("NewBucketWidth() error = %v", err)
	}

	at := func(h, m, s int) time.Time {
		return time.Date(2025, 10, 2, h, m, s, 0, time.UTC)
	}

	a := BuildPartitionKey("insta-views", at(12, 7, 43), width)
	b := BuildPartitionKey("insta-views", at(12, 0, 0), width)
	c := BuildPartitionKey("insta-views", at(12, 10, 1), width)

	want := "insta-views/date=2025-10-02/hour=12/minute=00/snapshot"
	if a.String() != want {
		t.Fatalf("key = %q, want %q", a.String(), want)
	}
	if a.String() != b.String() {
		t.Fatalf("keys inside one bucket differ: %q vs %q", a, b)
	}
	if c.String() != "insta-views/date=2025-10-02/hour=12/minute=10/snapshot" {
		t.Fatalf("unexpected next-bucket key %q", c)
	}
	if a.ObjectKey(".csv") != want+".csv" || a.ObjectKey("csv") != want+".csv" {
		t.Fatalf("unexpected object key %q", a.ObjectKey(".csv"))
	}
}

func TestBuildPartitionKey_NormalizesToUTCAndPrefix(t *testing.T) {
	width, _ := NewBucketWidth(15 * time.Minute)
	kst := time.FixedZone("KST", 9*60*60)

	key := BuildPartitionKey("/views/", time.Date(2025, 10, 2, 0, 59, 59, 999, kst), width)

	want := "views/date=2025-10-01/hour=15/minute=45/snapshot"
	if key.String() != want {
		t.Fatalf("key = %q, want %q", key.String(), want)
	}

	if got := BuildPartitionKey("", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), width).String(); got != "insta-views/date=2025-01-01/hour=00/minute=00/snapshot" {
		t.Fatalf("default prefix not applied: %q", got)
	}
}

func TestNewBucketWidth_Validation(t *testing.T) {
	tests := []struct {
		name    string
		width   time.Duration
		wantErr bool
	}{
		{"ten minutes", 10 * time.Minute, false},
		{"one hour", time.Hour, false},
		{"seven minutes", 7 * time.Minute, true},
		{"sub-minute", 30 * time.Second, true},
		{"two hours", 2 * time.Hour, true},
		{"fractional", 90 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBucketWidth(tt.width)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBucketWidth(%s) error = %v, wantErr %v", tt.width, err, tt.wantErr)
			}
		})
	}
}

func TestCutoff(t *testing.T) {
	cutoff, err := NewCutoff(DefaultCutoff)
	if err != nil {
		t.Fatalf("NewCutoff() error = %v", err)
	}

	tests := []struct {
		timestamp string
		excluded  bool
	}{
		{"2025-10-02T09:00:00+0000", false},
		{"2025-10-01T15:00:00+0000", false},
		{"2025-10-01T14:59:59+0000", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := cutoff.Excludes(tt.timestamp); got != tt.excluded {
			t.Errorf("Excludes(%q) = %v, want %v", tt.timestamp, got, tt.excluded)
		}
	}
}

func TestNewCutoff_RejectsNonUTCAndMalformed(t *testing.T) {
	for _, raw := range []string{"2025-10-02T00:00:00+0900", "2025-10-01", "2025-10-01T15:00:00Z"} {
		if _, err := NewCutoff(raw); err == nil {
			t.Errorf("NewCutoff(%q) expected error", raw)
		}
	}
}

func TestParseMediaTypeSet(t *testing.T) {
	set, err := ParseMediaTypeSet(" image, VIDEO ,CAROUSEL_ALBUM,")
	if err != nil {
		t.Fatalf("ParseMediaTypeSet() error = %v", err)
	}
	for _, mt := range AllMediaTypes() {
		if !set.Contains(mt) {
			t.Errorf("expected %s in set", mt)
		}
	}
	if set.Contains("STORY") {
		t.Errorf("unexpected STORY membership")
	}

	if _, err := ParseMediaTypeSet("IMAGE,REELS"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := ParseMediaTypeSet(" , "); err == nil {
		t.Fatalf("expected error for empty set")
	}
}

func TestMetricValue(t *testing.T) {
	absent := AbsentMetricValue()
	if absent.IsPresent() || absent.String() != "" {
		t.Fatalf("absent value rendered as %q", absent.String())
	}

	v, err := NewMetricValue(17696)
	if err != nil {
		t.Fatalf("NewMetricValue() error = %v", err)
	}
	if got, ok := v.Get(); !ok || got != 17696 || v.String() != "17696" {
		t.Fatalf("unexpected value %v %v %q", got, ok, v.String())
	}

	zero, _ := NewMetricValue(0)
	if !zero.IsPresent() || zero.String() != "0" || zero.Equals(absent) {
		t.Fatalf("zero must be a present value")
	}

	if _, err := NewMetricValue(-1); err == nil {
		t.Fatalf("expected error for negative value")
	}
}
