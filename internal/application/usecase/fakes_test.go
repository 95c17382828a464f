package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/service"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
	"github.com/dreschagin/views-collector/pkg/retry"
)

type scriptedSource struct {
	pages       map[string]port.MediaPage
	pageErr     error
	pageCalls   []string
	metrics     map[string]int64
	metricErrs  map[string]error
	metricCalls map[string]int
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		pages:       make(map[string]port.MediaPage),
		metrics:     make(map[string]int64),
		metricErrs:  make(map[string]error),
		metricCalls: make(map[string]int),
	}
}

func (s *scriptedSource) FetchMediaPage(_ context.Context, cursor string, _ int) (port.MediaPage, error) {
	s.pageCalls = append(s.pageCalls, cursor)
	if s.pageErr != nil {
		return port.MediaPage{}, s.pageErr
	}
	page, ok := s.pages[cursor]
	if !ok {
		return port.MediaPage{}, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

func (s *scriptedSource) FetchMetric(_ context.Context, mediaID, _ string) (valueobject.MetricValue, error) {
	s.metricCalls[mediaID]++
	if err, ok := s.metricErrs[mediaID]; ok {
		return valueobject.AbsentMetricValue(), err
	}
	value, ok := s.metrics[mediaID]
	if !ok {
		return valueobject.AbsentMetricValue(), nil
	}
	return valueobject.NewMetricValue(value)
}

func mustItem(t *testing.T, id, timestamp string, mediaType valueobject.MediaType) *entity.MediaItem {
	t.Helper()
	item, err := entity.NewMediaItem(id, mediaType, timestamp, "caption "+id, "https://instagram.com/p/"+id)
	if err != nil {
		t.Fatalf("NewMediaItem() error = %v", err)
	}
	return item
}

func noSleepPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		Backoff:    retry.Linear(1200 * time.Millisecond),
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func traversalConfig(t *testing.T, maxPages int) TraversalConfig {
	t.Helper()
	cutoff, err := valueobject.NewCutoff(valueobject.DefaultCutoff)
	if err != nil {
		t.Fatalf("NewCutoff() error = %v", err)
	}
	allowed, err := valueobject.NewMediaTypeSet(valueobject.AllMediaTypes()...)
	if err != nil {
		t.Fatalf("NewMediaTypeSet() error = %v", err)
	}
	return TraversalConfig{Cutoff: cutoff, MaxPages: maxPages, AllowedTypes: allowed}
}

func newTraversal(t *testing.T, source port.MediaSource, maxPages int) *TraverseMediaUseCase {
	t.Helper()
	log := logger.New("error")
	uc, err := NewTraverseMediaUseCase(
		NewMediaPageFetcher(source, noSleepPolicy(2), 100),
		NewMetricFetcher(source, noSleepPolicy(2), "views", log),
		traversalConfig(t, maxPages),
		log,
	)
	if err != nil {
		t.Fatalf("NewTraverseMediaUseCase() error = %v", err)
	}
	return uc
}

type lineEncoder struct{}

func (lineEncoder) Encode(snapshot *service.Snapshot) ([]byte, error) {
	lines := []string{strings.Join(snapshot.Columns, ",")}
	for _, record := range snapshot.Records {
		lines = append(lines, strings.Join(record, ","))
	}
	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

func (lineEncoder) ContentType() string        { return "text/csv; charset=utf-8" }
func (lineEncoder) ContentDisposition() string { return "attachment; filename=snapshot.csv" }
func (lineEncoder) Extension() string          { return ".csv" }

type memoryStorage struct {
	objects []port.SnapshotObject
	err     error
	panic   bool
}

func (m *memoryStorage) PutObject(_ context.Context, object port.SnapshotObject) (string, error) {
	if m.panic {
		panic("storage exploded")
	}
	if m.err != nil {
		return "", m.err
	}
	m.objects = append(m.objects, object)
	return "s3://snapshots/" + object.Key, nil
}

type recordingNotifier struct {
	messages []string
	err      error
	panic    bool
}

// Notify drops the message when ctx is already done, like a real HTTP client.
func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	if n.panic {
		panic("notifier exploded")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.messages = append(n.messages, message)
	return n.err
}

type recordingSinks struct {
	runs      []port.RunRecord
	statuses  []dto.RunSummaryDTO
	events    []dto.SnapshotEventDTO
	published []dto.RunSummaryDTO
	savedRows int
	err       error
}

func (r *recordingSinks) Put(_ context.Context, record port.RunRecord) error {
	r.runs = append(r.runs, record)
	return r.err
}

func (r *recordingSinks) ListByPartition(_ context.Context, query port.RunListQuery) (port.RunListPage, error) {
	if r.err != nil {
		return port.RunListPage{}, r.err
	}
	items := make([]port.RunRecord, 0)
	for _, run := range r.runs {
		if run.PartitionKey == query.PartitionKey {
			items = append(items, run)
		}
	}
	return port.RunListPage{Items: items}, nil
}

func (r *recordingSinks) SaveBatch(_ context.Context, _ string, rows []*entity.SnapshotRow) error {
	r.savedRows += len(rows)
	return r.err
}

func (r *recordingSinks) CountSince(context.Context, time.Time) (int64, error) {
	return int64(r.savedRows), r.err
}

func (r *recordingSinks) SaveLastRun(_ context.Context, summary dto.RunSummaryDTO) error {
	r.statuses = append(r.statuses, summary)
	return r.err
}

func (r *recordingSinks) LastRun(context.Context) (*dto.RunSummaryDTO, error) {
	if len(r.statuses) == 0 {
		return nil, port.ErrCacheMiss
	}
	last := r.statuses[len(r.statuses)-1]
	return &last, r.err
}

func (r *recordingSinks) Close() error { return nil }

func (r *recordingSinks) PublishSnapshot(_ context.Context, event dto.SnapshotEventDTO) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSinks) PublishRun(_ context.Context, summary dto.RunSummaryDTO) error {
	r.published = append(r.published, summary)
	return r.err
}

func (r *recordingSinks) Flush(context.Context) error { return nil }

var errBoom = errors.New("boom")
