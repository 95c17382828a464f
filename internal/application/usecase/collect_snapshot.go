package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/repository"
	"github.com/dreschagin/views-collector/internal/domain/service"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const MaxTraceBytes = 900

// SinkTimeout bounds the notifications and records sent after the snapshot
// write or after a fatal failure.
const SinkTimeout = 10 * time.Second

const (
	KindPageFetch = "PageFetchError"
	KindEncode    = "EncodeError"
	KindStorage   = "StorageError"
	KindPanic     = "Panic"
	KindCanceled  = "Canceled"
	KindInternal  = "InternalError"
)

// InvocationError is what the invoker sees for any fatal failure.
type InvocationError struct {
	Kind         string
	Message      string
	Trace        string
	InvocationID string
	Err          error

	// Summary is the failed run as it was recorded to the sinks.
	Summary dto.RunSummaryDTO
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *InvocationError) Unwrap() error { return e.Err }

type CollectSnapshotCommand struct {
	InvocationID string
}

type CollectSnapshotResult struct {
	Summary dto.RunSummaryDTO
}

type CollectSnapshotConfig struct {
	KeyPrefix       string
	BucketWidth     valueobject.BucketWidth
	NotifyOnSuccess bool
}

// CollectSnapshotDeps lists the collaborators of one invocation. Traversal,
// Encoder and Storage are required; everything else may be nil.
type CollectSnapshotDeps struct {
	Traversal *TraverseMediaUseCase
	Builder   *service.SnapshotBuilder
	Encoder   port.SnapshotEncoder
	Storage   port.SnapshotStorage

	Notifier    port.Notifier
	RunIndex    port.RunIndexRepository
	Rows        repository.SnapshotRowRepository
	StatusCache port.RunStatusCache
	Events      port.EventPublisher
	Metrics     []port.RunMetricsPublisher

	Clock func() time.Time
}

// CollectSnapshotUseCase координирует один запуск: обход, сборку снапшота,
// запись в хранилище и уведомления.
type CollectSnapshotUseCase struct {
	deps   CollectSnapshotDeps
	config CollectSnapshotConfig
	logger *logger.Logger
}

func NewCollectSnapshotUseCase(
	deps CollectSnapshotDeps,
	config CollectSnapshotConfig,
	log *logger.Logger,
) (*CollectSnapshotUseCase, error) {
	if deps.Traversal == nil {
		return nil, errors.New("traversal is not configured")
	}
	if deps.Encoder == nil {
		return nil, errors.New("snapshot encoder is not configured")
	}
	if deps.Storage == nil {
		return nil, errors.New("snapshot storage is not configured")
	}
	if deps.Builder == nil {
		deps.Builder = service.NewSnapshotBuilder()
	}
	if log == nil {
		log = logger.New("error")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if config.BucketWidth.Duration() == 0 {
		width, err := valueobject.NewBucketWidth(valueobject.DefaultBucketWidth)
		if err != nil {
			return nil, err
		}
		config.BucketWidth = width
	}

	return &CollectSnapshotUseCase{
		deps:   deps,
		config: config,
		logger: log,
	}, nil
}

// Execute runs one invocation. On success exactly one snapshot has been
// written; on failure nothing was written and the error is *InvocationError.
func (uc *CollectSnapshotUseCase) Execute(ctx context.Context, cmd CollectSnapshotCommand) (result *CollectSnapshotResult, err error) {
	invocationID := strings.TrimSpace(cmd.InvocationID)
	if invocationID == "" {
		invocationID = uuid.New().String()
	}

	log := uc.logger.With("invocation_id", invocationID)
	startedAt := uc.deps.Clock().UTC()

	summary := dto.RunSummaryDTO{
		InvocationID: invocationID,
		StartedAt:    startedAt,
	}

	defer func() {
		if r := recover(); r != nil {
			invErr := &InvocationError{
				Kind:         KindPanic,
				Message:      fmt.Sprint(r),
				Trace:        TruncateTrace(string(debug.Stack())),
				InvocationID: invocationID,
			}
			result, err = nil, uc.fail(ctx, log, summary, invErr)
		}
	}()

	summary, invErr := uc.run(ctx, log, summary)
	if invErr != nil {
		return nil, uc.fail(ctx, log, summary, invErr)
	}

	summary = uc.succeed(ctx, log, summary)
	return &CollectSnapshotResult{Summary: summary}, nil
}

func (uc *CollectSnapshotUseCase) run(
	ctx context.Context,
	log *logger.Logger,
	summary dto.RunSummaryDTO,
) (dto.RunSummaryDTO, *InvocationError) {
	key := valueobject.BuildPartitionKey(uc.config.KeyPrefix, summary.StartedAt, uc.config.BucketWidth)
	summary.PartitionKey = key.String()
	summary.ObjectKey = key.ObjectKey(uc.deps.Encoder.Extension())

	log.Info("Starting snapshot collection", "partition", summary.PartitionKey)

	traversal, err := uc.deps.Traversal.Execute(ctx, summary.StartedAt)
	if err != nil {
		return summary, newInvocationError(summary.InvocationID, err)
	}

	summary.Rows = len(traversal.Rows)
	summary.Pages = traversal.Pages
	summary.SkippedItems = traversal.SkippedItems
	summary.MetricFailures = traversal.MetricFailures
	summary.StopReason = string(traversal.StopReason)

	snapshot, err := uc.deps.Builder.Build(traversal.Rows, summary.StartedAt)
	if err != nil {
		return summary, newInvocationError(summary.InvocationID, err)
	}

	body, err := uc.deps.Encoder.Encode(snapshot)
	if err != nil {
		return summary, &InvocationError{
			Kind:         KindEncode,
			Message:      err.Error(),
			Trace:        errorTrace(err),
			InvocationID: summary.InvocationID,
			Err:          err,
		}
	}

	location, err := uc.deps.Storage.PutObject(ctx, port.SnapshotObject{
		Key:                summary.ObjectKey,
		ContentType:        uc.deps.Encoder.ContentType(),
		ContentDisposition: uc.deps.Encoder.ContentDisposition(),
		Body:               body,
	})
	if err != nil {
		return summary, &InvocationError{
			Kind:         KindStorage,
			Message:      err.Error(),
			Trace:        errorTrace(err),
			InvocationID: summary.InvocationID,
			Err:          err,
		}
	}
	summary.Location = location

	if rows := uc.deps.Rows; rows != nil {
		sinkCtx, cancel := sinkContext(ctx)
		guardSink(log, "Failed to store snapshot rows", func() error {
			return rows.SaveBatch(sinkCtx, summary.InvocationID, traversal.Rows)
		})
		cancel()
	}

	return summary, nil
}

func (uc *CollectSnapshotUseCase) succeed(ctx context.Context, log *logger.Logger, summary dto.RunSummaryDTO) dto.RunSummaryDTO {
	summary.Outcome = dto.OutcomeSuccess
	uc.finish(&summary)

	log.Info("Snapshot collected",
		"rows", summary.Rows,
		"pages", summary.Pages,
		"metric_failures", summary.MetricFailures,
		"stop_reason", summary.StopReason,
		"key", summary.ObjectKey,
		"duration_ms", summary.DurationMs,
	)

	sinkCtx, cancel := sinkContext(ctx)
	defer cancel()

	if uc.config.NotifyOnSuccess {
		uc.notify(sinkCtx, log, SuccessMessage(summary))
	}

	if events := uc.deps.Events; events != nil {
		guardSink(log, "Failed to publish snapshot event", func() error {
			return events.PublishSnapshot(sinkCtx, dto.NewSnapshotEventDTO(summary))
		})
	}

	uc.record(sinkCtx, log, summary)
	return summary
}

func (uc *CollectSnapshotUseCase) fail(
	ctx context.Context,
	log *logger.Logger,
	summary dto.RunSummaryDTO,
	invErr *InvocationError,
) *InvocationError {
	summary.Outcome = dto.OutcomeFailure
	summary.ErrorKind = invErr.Kind
	summary.Error = invErr.Message
	summary.Location = ""
	uc.finish(&summary)
	invErr.Summary = summary

	log.Error("Snapshot collection failed", invErr,
		"kind", invErr.Kind,
		"pages", summary.Pages,
	)

	// ctx may be the reason for the failure; reports must still go out.
	sinkCtx, cancel := sinkContext(ctx)
	defer cancel()

	uc.notify(sinkCtx, log, FailureMessage(invErr))
	uc.record(sinkCtx, log, summary)

	return invErr
}

func (uc *CollectSnapshotUseCase) finish(summary *dto.RunSummaryDTO) {
	summary.FinishedAt = uc.deps.Clock().UTC()
	summary.DurationMs = summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()
}

func (uc *CollectSnapshotUseCase) notify(ctx context.Context, log *logger.Logger, message string) {
	if uc.deps.Notifier == nil {
		return
	}
	notifier := uc.deps.Notifier
	guardSink(log, "Notification failed", func() error {
		return notifier.Notify(ctx, message)
	})
}

// record writes the summary to every optional sink. Sink failures are logged
// and never change the outcome.
func (uc *CollectSnapshotUseCase) record(ctx context.Context, log *logger.Logger, summary dto.RunSummaryDTO) {
	if index := uc.deps.RunIndex; index != nil {
		guardSink(log, "Failed to index run", func() error {
			return index.Put(ctx, toRunRecord(summary))
		})
	}

	if cache := uc.deps.StatusCache; cache != nil {
		guardSink(log, "Failed to cache run status", func() error {
			return cache.SaveLastRun(ctx, summary)
		})
	}

	for _, publisher := range uc.deps.Metrics {
		if publisher == nil {
			continue
		}
		guardSink(log, "Failed to publish run metrics", func() error {
			return publisher.PublishRun(ctx, summary)
		})
	}
}

// sinkContext detaches from ctx cancellation and applies SinkTimeout.
func sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), SinkTimeout)
}

// guardSink runs one best-effort sink call. Errors and panics are logged
// with msg and never reach the invocation outcome.
func guardSink(log *logger.Logger, msg string, call func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn(msg, "panic", fmt.Sprint(r))
		}
	}()

	if err := call(); err != nil {
		log.Warn(msg, "error", err.Error())
	}
}

// SuccessMessage is the operator notification for a written snapshot.
func SuccessMessage(summary dto.RunSummaryDTO) string {
	return fmt.Sprintf("snapshot uploaded: %d rows -> %s", summary.Rows, summary.Location)
}

// FailureMessage carries kind, message, invocation id and the truncated trace.
func FailureMessage(err *InvocationError) string {
	message := fmt.Sprintf("snapshot failed: %s - %s | request_id=%s", err.Kind, err.Message, err.InvocationID)
	if err.Trace != "" {
		message += "\n" + err.Trace
	}
	return message
}

// TruncateTrace cuts s to at most MaxTraceBytes without splitting a rune.
func TruncateTrace(s string) string {
	if len(s) <= MaxTraceBytes {
		return s
	}
	cut := MaxTraceBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func newInvocationError(invocationID string, err error) *InvocationError {
	kind := KindInternal
	var pageErr *PageFetchError
	switch {
	// cancellation surfaces wrapped in PageFetchError and must win over it
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	case errors.As(err, &pageErr):
		kind = KindPageFetch
	}

	return &InvocationError{
		Kind:         kind,
		Message:      err.Error(),
		Trace:        errorTrace(err),
		InvocationID: invocationID,
		Err:          err,
	}
}

// errorTrace renders the wrap chain of err, outermost first.
func errorTrace(err error) string {
	var b strings.Builder
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			b.WriteString("\n  caused by: ")
		}
		fmt.Fprintf(&b, "%T: %v", err, err)
		err = errors.Unwrap(err)
	}
	return TruncateTrace(b.String())
}

func toRunRecord(summary dto.RunSummaryDTO) port.RunRecord {
	return port.RunRecord{
		InvocationID:   summary.InvocationID,
		PartitionKey:   summary.PartitionKey,
		ObjectKey:      summary.ObjectKey,
		Location:       summary.Location,
		Outcome:        summary.Outcome,
		StopReason:     summary.StopReason,
		ErrorKind:      summary.ErrorKind,
		ErrorMessage:   summary.Error,
		Rows:           summary.Rows,
		Pages:          summary.Pages,
		MetricFailures: summary.MetricFailures,
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
	}
}
