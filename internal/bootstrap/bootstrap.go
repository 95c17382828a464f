// Package bootstrap wires the collector from config.Config. Every entrypoint
// (one-shot, Lambda, daemon) builds its use cases here.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/internal/domain/repository"
	"github.com/dreschagin/views-collector/internal/domain/service"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	redisCache "github.com/dreschagin/views-collector/internal/infrastructure/cache/redis"
	"github.com/dreschagin/views-collector/internal/infrastructure/codec/csvsnapshot"
	"github.com/dreschagin/views-collector/internal/infrastructure/graphapi"
	natsInfra "github.com/dreschagin/views-collector/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/views-collector/internal/infrastructure/notification/slack"
	"github.com/dreschagin/views-collector/internal/infrastructure/observability/cloudwatch"
	dynamodbRepo "github.com/dreschagin/views-collector/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/views-collector/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/views-collector/internal/infrastructure/storage/s3"
	"github.com/dreschagin/views-collector/pkg/config"
	"github.com/dreschagin/views-collector/pkg/logger"
	"github.com/dreschagin/views-collector/pkg/retry"

	_ "github.com/lib/pq"
)

// Collector holds the wired use cases and whatever must be closed on exit.
type Collector struct {
	Collect     *usecase.CollectSnapshotUseCase
	ListRuns    *usecase.ListRunsUseCase
	StatusCache port.RunStatusCache

	BucketWidth valueobject.BucketWidth
	KeyPrefix   string

	closers  []func(ctx context.Context) error
	flushers []func(ctx context.Context) error
	log      *logger.Logger
}

// Settings are the validated collector values derived from config.Config.
type Settings struct {
	Traversal   usecase.TraversalConfig
	Policy      retry.Policy
	BucketWidth valueobject.BucketWidth
	KeyPrefix   string
	PageSize    int
	MetricName  string
}

// ParseSettings validates the collector group of the configuration.
func ParseSettings(cfg *config.Config) (Settings, error) {
	cutoff, err := valueobject.NewCutoff(cfg.Collector.CutoffUTC)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid CUTOFF_UTC: %w", err)
	}

	allowed, err := valueobject.ParseMediaTypeSet(cfg.Collector.AllowedMediaTypes)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid ALLOWED_MEDIA_TYPES: %w", err)
	}

	width, err := valueobject.NewBucketWidth(cfg.Collector.BucketWidth)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid BUCKET_WIDTH: %w", err)
	}

	traversal := usecase.TraversalConfig{
		Cutoff:       cutoff,
		MaxPages:     cfg.Collector.MaxPages,
		AllowedTypes: allowed,
	}
	if err := traversal.Validate(); err != nil {
		return Settings{}, err
	}

	return Settings{
		Traversal:   traversal,
		Policy:      retry.NewLinear(cfg.Collector.Retries, cfg.Collector.RetryBackoff),
		BucketWidth: width,
		KeyPrefix:   cfg.Collector.KeyPrefix,
		PageSize:    cfg.Graph.PageSize,
		MetricName:  cfg.Collector.MetricName,
	}, nil
}

// Build connects every enabled collaborator. Required ones (Graph API, S3)
// fail the build; optional sinks that cannot connect are logged and skipped.
// extraMetrics are appended to the run metrics publishers.
func Build(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	extraMetrics ...port.RunMetricsPublisher,
) (*Collector, error) {
	if err := cfg.RequireCollector(); err != nil {
		return nil, err
	}

	settings, err := ParseSettings(cfg)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		BucketWidth: settings.BucketWidth,
		KeyPrefix:   settings.KeyPrefix,
		log:         log,
	}

	if cfg.CloudWatch.LogsEnabled {
		logsPublisher, initErr := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroup,
			LogStreamName:   cfg.CloudWatch.LogStream,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			FlushInterval:   cfg.CloudWatch.FlushInterval,
			AutoCreate:      true,
		})
		if initErr != nil {
			log.Warn("CloudWatch logs publisher unavailable", "error", initErr.Error())
		} else {
			log.SetLogPublisher(logsPublisher)
			c.addCloser(logsPublisher.Close)
			c.flushers = append(c.flushers, logsPublisher.Flush)
			log.Info("CloudWatch logs publisher initialized")
		}
	}

	source, err := graphapi.NewClient(graphapi.Config{
		BaseURL:        cfg.Graph.BaseURL,
		Version:        cfg.Graph.Version,
		AccessToken:    cfg.Graph.AccessToken,
		UserID:         cfg.Graph.UserID,
		Timeout:        cfg.Graph.RequestTimeout,
		RateLimitRPS:   cfg.Graph.RateLimitRPS,
		RateLimitBurst: cfg.Graph.RateLimitBurst,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph api client: %w", err)
	}

	storage, err := s3storage.NewSnapshotStorage(ctx, s3storage.Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
		PresignedTTL:    cfg.S3.PresignedTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot storage: %w", err)
	}

	traversal, err := usecase.NewTraverseMediaUseCase(
		usecase.NewMediaPageFetcher(source, settings.Policy, settings.PageSize),
		usecase.NewMetricFetcher(source, settings.Policy, settings.MetricName, log),
		settings.Traversal,
		log,
	)
	if err != nil {
		return nil, err
	}

	deps := usecase.CollectSnapshotDeps{
		Traversal: traversal,
		Builder:   service.NewSnapshotBuilder(),
		Encoder:   csvsnapshot.NewEncoder(),
		Storage:   storage,
	}

	if cfg.Slack.WebhookURL != "" {
		notifier, initErr := slack.NewWebhookNotifier(cfg.Slack.WebhookURL, cfg.Slack.Timeout, log)
		if initErr != nil {
			return nil, fmt.Errorf("failed to create slack notifier: %w", initErr)
		}
		deps.Notifier = notifier
	} else {
		log.Warn("Slack notifications are disabled")
	}

	if cfg.Dynamo.Enabled {
		runIndex, initErr := dynamodbRepo.NewRunIndexRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableRuns,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			RunTTL:          cfg.Dynamo.RunTTL,
			StrongReads:     cfg.Dynamo.StrongReads,
		})
		if initErr != nil {
			log.Warn("DynamoDB run index unavailable", "error", initErr.Error())
		} else {
			deps.RunIndex = runIndex
			c.ListRuns = usecase.NewListRunsUseCase(runIndex, usecase.ListRunsConfig{
				KeyPrefix:   settings.KeyPrefix,
				BucketWidth: settings.BucketWidth,
			}, log)
			log.Info("DynamoDB run index initialized", "table", cfg.Dynamo.TableRuns)
		}
	}

	if cfg.Database.Enabled {
		rows, initErr := openRowRepository(ctx, cfg.Database)
		if initErr != nil {
			log.Warn("Postgres row sink unavailable", "error", initErr.Error())
		} else {
			deps.Rows = rows.repo
			c.addCloser(func(context.Context) error { return rows.db.Close() })
			log.Info("Postgres row sink initialized")
		}
	}

	if cfg.Redis.Enabled {
		cache, initErr := redisCache.NewRunStatusCache(redisCache.Options{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Redis.StatusTTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if initErr != nil {
			log.Warn("Redis run status cache unavailable", "error", initErr.Error())
		} else {
			deps.StatusCache = cache
			c.StatusCache = cache
			c.addCloser(func(context.Context) error { return cache.Close() })
			log.Info("Redis run status cache initialized", "addr", cfg.Redis.Addr())
		}
	}

	if cfg.NATS.Enabled {
		events, initErr := natsInfra.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			deps.Events = events
			c.addCloser(func(context.Context) error { return events.Close() })
		}
	}

	if cfg.CloudWatch.MetricsEnabled {
		metrics, initErr := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:       cfg.CloudWatch.Namespace,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			FlushInterval:   cfg.CloudWatch.FlushInterval,
		})
		if initErr != nil {
			log.Warn("CloudWatch metrics publisher unavailable", "error", initErr.Error())
		} else {
			deps.Metrics = append(deps.Metrics, metrics)
			c.addCloser(metrics.Close)
			c.flushers = append(c.flushers, metrics.Flush)
			log.Info("CloudWatch metrics publisher initialized", "namespace", cfg.CloudWatch.Namespace)
		}
	}
	deps.Metrics = append(deps.Metrics, extraMetrics...)

	collect, err := usecase.NewCollectSnapshotUseCase(deps, usecase.CollectSnapshotConfig{
		KeyPrefix:       settings.KeyPrefix,
		BucketWidth:     settings.BucketWidth,
		NotifyOnSuccess: cfg.Slack.NotifyOnSuccess,
	}, log)
	if err != nil {
		return nil, err
	}
	c.Collect = collect

	return c, nil
}

// Flush drains buffered metrics and logs without closing anything. Lambda
// calls it after every invocation because the runtime may freeze afterwards.
func (c *Collector) Flush(ctx context.Context) {
	for i := len(c.flushers) - 1; i >= 0; i-- {
		if err := c.flushers[i](ctx); err != nil {
			c.log.Warn("Failed to flush collaborator", "error", err.Error())
		}
	}
}

// Close flushes and closes collaborators in reverse order of creation.
func (c *Collector) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.log.Warn("Failed to close collaborator", "error", err.Error())
		}
	}
	c.closers = nil
}

func (c *Collector) addCloser(fn func(ctx context.Context) error) {
	c.closers = append(c.closers, fn)
}

type rowSink struct {
	db   *sql.DB
	repo repository.SnapshotRowRepository
}

func openRowRepository(ctx context.Context, cfg config.DatabaseConfig) (*rowSink, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := postgres.NewPostgresSnapshotRowRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &rowSink{db: db, repo: repo}, nil
}
