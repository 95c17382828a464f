package csvsnapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/service"
)

const (
	ContentType        = "text/csv; charset=utf-8"
	ContentDisposition = "attachment; filename=snapshot.csv"
	Extension          = ".csv"
)

// utf8BOM lets spreadsheet tools detect the encoding of non-ASCII captions.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoder writes snapshots as UTF-8 CSV with a BOM and "\n" line endings.
// The header row is always present.
type Encoder struct{}

var _ port.SnapshotEncoder = Encoder{}

func NewEncoder() Encoder {
	return Encoder{}
}

func (Encoder) Encode(snapshot *service.Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is nil")
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.UseCRLF = false

	if err := w.Write(snapshot.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, record := range snapshot.Records {
		if len(record) != len(snapshot.Columns) {
			return nil, fmt.Errorf("record %d has %d fields, want %d", i, len(record), len(snapshot.Columns))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

func (Encoder) ContentType() string {
	return ContentType
}

func (Encoder) ContentDisposition() string {
	return ContentDisposition
}

func (Encoder) Extension() string {
	return Extension
}
