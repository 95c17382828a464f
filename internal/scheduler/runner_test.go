package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/pkg/logger"
)

type fakeCollector struct {
	mu       sync.Mutex
	calls    []usecase.CollectSnapshotCommand
	result   *usecase.CollectSnapshotResult
	err      error
	deadline bool
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeCollector) Execute(ctx context.Context, cmd usecase.CollectSnapshotCommand) (*usecase.CollectSnapshotResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	_, f.deadline = ctx.Deadline()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	return f.result, f.err
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func successResult(rows int) *usecase.CollectSnapshotResult {
	return &usecase.CollectSnapshotResult{Summary: dto.RunSummaryDTO{
		InvocationID: "ignored",
		Outcome:      dto.OutcomeSuccess,
		StopReason:   "cutoff",
		Rows:         rows,
		StartedAt:    time.Date(2025, 10, 2, 12, 7, 43, 0, time.UTC),
	}}
}

func TestNewRunner_Validation(t *testing.T) {
	if _, err := NewRunner(nil, "", time.Minute, testLogger()); err == nil {
		t.Error("expected error for nil collector")
	}
	if _, err := NewRunner(&fakeCollector{}, "not a cron", time.Minute, testLogger()); err == nil {
		t.Error("expected error for invalid schedule")
	}

	r, err := NewRunner(&fakeCollector{}, "", time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if r.expr != DefaultSchedule {
		t.Errorf("expr = %q, want default", r.expr)
	}
	if r.period != 10*time.Minute {
		t.Errorf("period = %v, want 10m", r.period)
	}

	hourly, err := NewRunner(&fakeCollector{}, "0 * * * *", time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if hourly.period != time.Hour {
		t.Errorf("period = %v, want 1h", hourly.period)
	}
}

func TestRunner_RunOnceSuccess(t *testing.T) {
	collector := &fakeCollector{result: successResult(3)}
	r, err := NewRunner(collector, "", time.Minute, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Rows != 3 {
		t.Errorf("Rows = %d, want 3", summary.Rows)
	}

	if len(collector.calls) != 1 || collector.calls[0].InvocationID == "" {
		t.Fatalf("calls = %+v, want one call with an invocation id", collector.calls)
	}
	if !collector.deadline {
		t.Error("run context has no deadline")
	}

	snapshot := r.Snapshot()
	if snapshot.LastRunAt.IsZero() || snapshot.LastError != "" || snapshot.LastSummary == nil {
		t.Errorf("snapshot = %+v", snapshot)
	}

	local, ok := r.LastSummary()
	if !ok || local.Rows != 3 {
		t.Errorf("LastSummary() = %+v, %v", local, ok)
	}
}

func TestRunner_InvocationIDsAreUnique(t *testing.T) {
	collector := &fakeCollector{result: successResult(1)}
	r, _ := NewRunner(collector, "", 0, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[string]bool{}
	for _, call := range collector.calls {
		if seen[call.InvocationID] {
			t.Fatalf("duplicate invocation id %s", call.InvocationID)
		}
		seen[call.InvocationID] = true
	}
	if collector.deadline {
		t.Error("zero run timeout should not set a deadline")
	}
}

func TestRunner_RunOnceFailureKeepsSummary(t *testing.T) {
	failed := dto.RunSummaryDTO{
		InvocationID: "abc",
		Outcome:      dto.OutcomeFailure,
		ErrorKind:    usecase.KindStorage,
		Error:        "denied",
	}
	collector := &fakeCollector{err: &usecase.InvocationError{
		Kind:         usecase.KindStorage,
		Message:      "denied",
		InvocationID: "abc",
		Summary:      failed,
	}}
	r, _ := NewRunner(collector, "", time.Minute, testLogger())

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	snapshot := r.Snapshot()
	if snapshot.LastError != "StorageError: denied" {
		t.Errorf("LastError = %q", snapshot.LastError)
	}
	if snapshot.LastSummary == nil || snapshot.LastSummary.Outcome != dto.OutcomeFailure {
		t.Errorf("LastSummary = %+v", snapshot.LastSummary)
	}
}

func TestRunner_FailureWithoutSummaryKeepsPrevious(t *testing.T) {
	collector := &fakeCollector{result: successResult(2)}
	r, _ := NewRunner(collector, "", time.Minute, testLogger())

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	collector.result = nil
	collector.err = errors.New("boom")
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	snapshot := r.Snapshot()
	if snapshot.LastError != "boom" {
		t.Errorf("LastError = %q", snapshot.LastError)
	}
	if snapshot.LastSummary == nil || snapshot.LastSummary.Rows != 2 {
		t.Errorf("LastSummary = %+v, want previous success", snapshot.LastSummary)
	}
}

func TestRunner_SerializesRuns(t *testing.T) {
	collector := &fakeCollector{result: successResult(1), delay: 20 * time.Millisecond}
	r, _ := NewRunner(collector, "", time.Minute, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	if collector.maxSeen != 1 {
		t.Errorf("max concurrent runs = %d, want 1", collector.maxSeen)
	}
	if len(collector.calls) != 4 {
		t.Errorf("calls = %d, want 4", len(collector.calls))
	}
}

func TestRunner_SnapshotIsCopy(t *testing.T) {
	r, _ := NewRunner(&fakeCollector{result: successResult(5)}, "", time.Minute, testLogger())
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	snapshot := r.Snapshot()
	snapshot.LastSummary.Rows = 99

	if again := r.Snapshot(); again.LastSummary.Rows != 5 {
		t.Errorf("internal summary mutated: %d", again.LastSummary.Rows)
	}
}

func TestRunner_Ready(t *testing.T) {
	collector := &fakeCollector{result: successResult(1)}
	r, _ := NewRunner(collector, "*/10 * * * *", time.Minute, testLogger())

	clock := time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	if ok, reason := r.Ready(); ok || reason != "no successful run yet" {
		t.Errorf("Ready() = %v, %q before first run", ok, reason)
	}

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ok, _ := r.Ready(); !ok {
		t.Error("Ready() = false after success")
	}

	clock = clock.Add(29 * time.Minute)
	if ok, _ := r.Ready(); !ok {
		t.Error("Ready() = false within three periods")
	}

	clock = clock.Add(2 * time.Minute)
	if ok, reason := r.Ready(); ok || reason != "stale collector run" {
		t.Errorf("Ready() = %v, %q after three periods", ok, reason)
	}

	collector.result = nil
	collector.err = errors.New("boom")
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if ok, reason := r.Ready(); ok || reason != "last run failed" {
		t.Errorf("Ready() = %v, %q after failure", ok, reason)
	}
}

func TestRunner_StartStopsOnCancel(t *testing.T) {
	r, _ := NewRunner(&fakeCollector{result: successResult(1)}, "", time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
