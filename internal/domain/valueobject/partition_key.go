package valueobject

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBucketWidth = 10 * time.Minute
	DefaultKeyPrefix   = "insta-views"
)

// BucketWidth is the partition window. It is a whole number of minutes that
// divides an hour, so every bucket starts on a minute boundary within its hour.
type BucketWidth struct {
	minutes int
}

func NewBucketWidth(d time.Duration) (BucketWidth, error) {
	if d < time.Minute || d > time.Hour || d%time.Minute != 0 {
		return BucketWidth{}, fmt.Errorf("bucket width must be whole minutes between 1m and 60m, got %s", d)
	}

	minutes := int(d / time.Minute)
	if 60%minutes != 0 {
		return BucketWidth{}, fmt.Errorf("bucket width must divide an hour, got %s", d)
	}

	return BucketWidth{minutes: minutes}, nil
}

func (b BucketWidth) Duration() time.Duration {
	return time.Duration(b.minutes) * time.Minute
}

// Floor zeroes the sub-bucket minutes, seconds and nanoseconds of t in UTC.
func (b BucketWidth) Floor(t time.Time) time.Time {
	minutes := b.minutes
	if minutes <= 0 {
		minutes = int(DefaultBucketWidth / time.Minute)
	}

	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), (t.Minute()/minutes)*minutes, 0, 0, time.UTC)
}

// PartitionKey is the storage path of one snapshot bucket (Value Object).
// Recomputing it for any instant inside the same bucket yields the same key.
type PartitionKey struct {
	prefix string
	bucket time.Time
}

// BuildPartitionKey floors now to the bucket width and derives
// <prefix>/date=YYYY-MM-DD/hour=HH/minute=MM/snapshot.
func BuildPartitionKey(prefix string, now time.Time, width BucketWidth) PartitionKey {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return PartitionKey{
		prefix: prefix,
		bucket: width.Floor(now),
	}
}

// Bucket is the floored invocation time.
func (k PartitionKey) Bucket() time.Time {
	return k.bucket
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/date=%s/hour=%s/minute=%s/snapshot",
		k.prefix,
		k.bucket.Format("2006-01-02"),
		k.bucket.Format("15"),
		k.bucket.Format("04"),
	)
}

// ObjectKey appends a file extension such as ".csv" to the partition path.
func (k PartitionKey) ObjectKey(extension string) string {
	if extension == "" {
		return k.String()
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return k.String() + extension
}
