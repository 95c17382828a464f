// Package synthetic fabricates cumulative view-count series from a manifest
// of final totals. The output is for offline analysis and never touches the
// collector's storage.
package synthetic

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const (
	TimestampLayout      = "2006-01-02 15:04:05"
	shortTimestampLayout = "2006-01-02 15:04"

	DefaultWindow = 21 * 24 * time.Hour
)

// KST is the fixed zone manifest timestamps are written in.
var KST = time.FixedZone("KST", 9*60*60)

// DefaultUpload is used when a manifest row has no upload time.
var DefaultUpload = time.Date(2025, 7, 16, 0, 0, 0, 0, KST)

var (
	nonNumeric = regexp.MustCompile(`[^0-9.]`)
	nonDigit   = regexp.MustCompile(`\D`)
)

// ManifestEntry is one media item with its observation window and final total.
type ManifestEntry struct {
	MediaID    string
	Filename   string
	Caption    string
	Permalink  string
	Upload     time.Time
	End        time.Time
	FinalViews int64
}

// ReadManifest parses a manifest CSV. UTF-8 (with or without BOM) is
// expected; anything else is decoded as CP949.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("decode manifest as cp949: %w", err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("read manifest header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var entries []ManifestEntry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest line %d: %w", line, err)
		}

		entry := ManifestEntry{
			MediaID:   NormalizeMediaID(field(record, "media_id"), field(record, "filename")),
			Filename:  field(record, "filename"),
			Caption:   field(record, "caption"),
			Permalink: field(record, "permalink"),
			Upload:    DefaultUpload,
		}

		if upload, ok := ParseKST(field(record, "upload_ts_kst")); ok {
			entry.Upload = upload
		}
		if end, ok := ParseKST(field(record, "end_ts_kst")); ok {
			entry.End = end
		} else {
			entry.End = entry.Upload.Add(DefaultWindow)
		}
		if views, ok := ParseViews(field(record, "final_views")); ok {
			entry.FinalViews = views
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// NormalizeMediaID falls back to the filename stem and zero-pads to three digits.
func NormalizeMediaID(id, filename string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, "nan") {
		base := filepath.Base(strings.TrimSpace(filename))
		if base == "." {
			base = ""
		}
		id, _, _ = strings.Cut(base, ".")
	}
	for len(id) < 3 {
		id = "0" + id
	}
	return id
}

// ParseKST accepts "2006-01-02 15:04:05" and "2006-01-02 15:04".
func ParseKST(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{TimestampLayout, shortTimestampLayout} {
		if t, err := time.ParseInLocation(layout, raw, KST); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseViews reads totals such as "17696", "17696.0", "90,557" and "9.5만".
func ParseViews(raw string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "nan" {
		return 0, false
	}

	if strings.Contains(s, "만") {
		num := nonNumeric.ReplaceAllString(s, "")
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		return int64(math.RoundToEven(f * 10000)), true
	}

	s = strings.ReplaceAll(s, ",", "")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(math.RoundToEven(f)), true
	}

	digits := nonDigit.ReplaceAllString(s, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
