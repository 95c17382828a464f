package synthetic

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

const mediaTypeImage = "IMAGE"

var Columns = []string{"media_id", "media_type", "caption", "permalink", "upload_ts_kst", "obs_ts_kst", "views_cum"}

// Observation is one output row.
type Observation struct {
	MediaID   string
	MediaType string
	Caption   string
	Permalink string
	UploadKST string
	ObsKST    string
	ViewsCum  int64
}

// Generate expands every entry into its series. A non-empty ids set keeps
// only the listed normalized media ids.
func Generate(entries []ManifestEntry, ids map[string]struct{}) []Observation {
	var out []Observation
	for _, entry := range entries {
		if len(ids) > 0 {
			if _, ok := ids[entry.MediaID]; !ok {
				continue
			}
		}

		upload := entry.Upload.Format(TimestampLayout)
		for _, point := range Series(entry.Upload, entry.End, entry.FinalViews, SeedFor(entry.MediaID)) {
			out = append(out, Observation{
				MediaID:   entry.MediaID,
				MediaType: mediaTypeImage,
				Caption:   entry.Caption,
				Permalink: entry.Permalink,
				UploadKST: upload,
				ObsKST:    point.At.Format(TimestampLayout),
				ViewsCum:  point.Views,
			})
		}
	}
	return out
}

// WriteCSV writes observations as UTF-8 CSV with a BOM.
func WriteCSV(w io.Writer, observations []Observation) error {
	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})

	cw := csv.NewWriter(&buf)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, o := range observations {
		record := []string{o.MediaID, o.MediaType, o.Caption, o.Permalink, o.UploadKST, o.ObsKST, strconv.FormatInt(o.ViewsCum, 10)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", o.MediaID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// LastViews returns the final cumulative value per media id, for checking
// the output against the manifest.
func LastViews(observations []Observation) map[string]int64 {
	last := make(map[string]int64)
	for _, o := range observations {
		last[o.MediaID] = o.ViewsCum
	}
	return last
}
