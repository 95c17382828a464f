package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const DefaultSchedule = "*/10 * * * *"

// Collector runs one snapshot invocation.
type Collector interface {
	Execute(ctx context.Context, cmd usecase.CollectSnapshotCommand) (*usecase.CollectSnapshotResult, error)
}

type Runner struct {
	collector  Collector
	log        *logger.Logger
	schedule   cron.Schedule
	expr       string
	period     time.Duration
	runTimeout time.Duration
	now        func() time.Time

	runMu sync.Mutex

	mu          sync.RWMutex
	startedAt   time.Time
	lastRunAt   time.Time
	lastError   string
	lastSummary *dto.RunSummaryDTO
}

// Snapshot is a copy of the runner state for status endpoints.
type Snapshot struct {
	StartedAt   time.Time          `json:"started_at"`
	Schedule    string             `json:"schedule"`
	Period      time.Duration      `json:"period"`
	LastRunAt   time.Time          `json:"last_run_at"`
	LastError   string             `json:"last_error,omitempty"`
	LastSummary *dto.RunSummaryDTO `json:"last_summary,omitempty"`
}

// NewRunner parses expr as a standard five-field cron expression in UTC.
func NewRunner(collector Collector, expr string, runTimeout time.Duration, log *logger.Logger) (*Runner, error) {
	if collector == nil {
		return nil, errors.New("collector is required")
	}
	if expr == "" {
		expr = DefaultSchedule
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	now := time.Now().UTC()
	next := schedule.Next(now)
	period := schedule.Next(next).Sub(next)

	return &Runner{
		collector:  collector,
		log:        log,
		schedule:   schedule,
		expr:       expr,
		period:     period,
		runTimeout: runTimeout,
		now:        time.Now,
		startedAt:  now,
	}, nil
}

// Start fires RunOnce on the schedule until ctx is done. A tick that arrives
// while a run is still in progress is skipped.
func (r *Runner) Start(ctx context.Context) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: r.log})),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() {
		// RunOnce already stores error state and logs context.
		_, _ = r.RunOnce(ctx)
	}))

	c.Start()
	r.log.Info("Collector schedule started", "schedule", r.expr, "period", r.period.String())

	<-ctx.Done()
	<-c.Stop().Done()
}

// RunOnce performs one invocation. Concurrent calls are serialized.
func (r *Runner) RunOnce(ctx context.Context) (*dto.RunSummaryDTO, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	result, err := r.collector.Execute(runCtx, usecase.CollectSnapshotCommand{
		InvocationID: uuid.NewString(),
	})
	runAt := r.now()

	if err != nil {
		var invErr *usecase.InvocationError
		if errors.As(err, &invErr) {
			summary := invErr.Summary
			r.updateFailure(runAt, err, &summary)
		} else {
			r.updateFailure(runAt, err, nil)
		}
		return nil, err
	}

	summary := result.Summary
	r.updateSuccess(runAt, &summary)

	if summary.Rows == 0 {
		r.log.Warn("Collector run completed with empty snapshot", "stop_reason", summary.StopReason)
	}

	return &summary, nil
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt: r.startedAt,
		Schedule:  r.expr,
		Period:    r.period,
		LastRunAt: r.lastRunAt,
		LastError: r.lastError,
	}

	if r.lastSummary != nil {
		copied := *r.lastSummary
		snapshot.LastSummary = &copied
	}

	return snapshot
}

// LastSummary adapts the runner to usecase.LocalRunStatus.
func (r *Runner) LastSummary() (dto.RunSummaryDTO, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastSummary == nil {
		return dto.RunSummaryDTO{}, false
	}
	return *r.lastSummary, true
}

// Ready is false until a run succeeded, after a failed run, and when the
// last run is older than three schedule periods.
func (r *Runner) Ready() (bool, string) {
	snapshot := r.Snapshot()
	switch {
	case snapshot.LastRunAt.IsZero():
		return false, "no successful run yet"
	case snapshot.LastError != "":
		return false, "last run failed"
	case r.now().Sub(snapshot.LastRunAt) > snapshot.Period*3:
		return false, "stale collector run"
	default:
		return true, ""
	}
}

func (r *Runner) updateFailure(runAt time.Time, err error, summary *dto.RunSummaryDTO) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = err.Error()
	if summary != nil {
		r.lastSummary = summary
	}
}

func (r *Runner) updateSuccess(runAt time.Time, summary *dto.RunSummaryDTO) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = ""
	r.lastSummary = summary
}

// cronLogger routes cron's own messages into the collector logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, keysAndValues...)
}
