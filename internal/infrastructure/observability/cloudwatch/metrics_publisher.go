package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/pkg/retry"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxRetries           = 2
	initialBackoff       = 100 * time.Millisecond
)

// Metric names published per invocation.
const (
	MetricRows           = "SnapshotRows"
	MetricPages          = "PagesFetched"
	MetricMetricFailures = "MetricFetchFailures"
	MetricDuration       = "InvocationDuration"
	MetricSuccess        = "InvocationSuccess"
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // CloudWatch namespace (e.g., "ViewsCollector")
	Region            string            // AWS region (e.g., "us-east-1")
	Endpoint          string            // Optional endpoint override (for LocalStack)
	AccessKeyID       string            // AWS access key
	SecretAccessKey   string            // AWS secret key
	DefaultDimensions map[string]string // Default dimensions added to all metrics
	BufferSize        int               // Buffer size before auto-flush
	FlushInterval     time.Duration     // Automatic flush interval
	StorageResolution int32             // Storage resolution in seconds (1 or 60)
}

// metricDataPutter is the part of the CloudWatch client the publisher uses.
type metricDataPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisher publishes run counters to AWS CloudWatch.
type MetricsPublisher struct {
	client            metricDataPutter
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32
	policy            retry.Policy

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

var _ port.RunMetricsPublisher = (*MetricsPublisher)(nil)

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig) (*MetricsPublisher, error) {
	cfg, err := normalizeMetricsConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Build AWS config
	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg)
	p.flushTicker = time.NewTicker(cfg.FlushInterval)
	p.stopCh = make(chan struct{})

	// Start background flush goroutine
	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func normalizeMetricsConfig(cfg MetricsPublisherConfig) (MetricsPublisherConfig, error) {
	if cfg.Namespace == "" {
		return cfg, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return cfg, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60 // Default to standard resolution
	}
	return cfg, nil
}

func newMetricsPublisher(client metricDataPutter, cfg MetricsPublisherConfig) *MetricsPublisher {
	return &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
		policy:            retry.NewExponential(maxRetries, initialBackoff),
		buffer:            make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
	}
}

// PublishRun buffers the counters of one invocation.
func (p *MetricsPublisher) PublishRun(ctx context.Context, summary dto.RunSummaryDTO) error {
	data := p.summaryToData(summary)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, data...)

	// Auto-flush if buffer is full
	if len(p.buffer) >= p.bufferSize {
		if err := p.flushBufferUnsafe(ctx); err != nil {
			return fmt.Errorf("failed to flush buffer: %w", err)
		}
	}

	return nil
}

// Flush forces immediate publication of all buffered metrics.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferUnsafe(ctx)
}

// Close stops the background flush goroutine and flushes remaining metrics.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
		p.flushTicker.Stop()
		p.wg.Wait()
	}

	return p.Flush(ctx)
}

// flushLoop runs in a background goroutine and flushes the buffer periodically.
func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			// a failed tick keeps the buffer for the next one
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferUnsafe flushes the buffer without locking (caller must hold lock).
func (p *MetricsPublisher) flushBufferUnsafe(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	// Publish in chunks (CloudWatch limit: 1000 metrics/request)
	for i := 0; i < len(p.buffer); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(p.buffer) {
			end = len(p.buffer)
		}

		if err := p.publishBatchWithRetry(ctx, p.buffer[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	// Clear buffer
	p.buffer = p.buffer[:0]

	return nil
}

// publishBatchWithRetry publishes a batch of metrics with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}
	_, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*cloudwatch.PutMetricDataOutput, error) {
		return p.client.PutMetricData(ctx, input)
	})
	return err
}

// summaryToData converts one run summary into CloudWatch data points.
func (p *MetricsPublisher) summaryToData(summary dto.RunSummaryDTO) []types.MetricDatum {
	timestamp := summary.FinishedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+1)
	for key, value := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}
	dimensions = append(dimensions, types.Dimension{
		Name:  aws.String("Outcome"),
		Value: aws.String(summary.Outcome),
	})

	success := 0.0
	if summary.Succeeded() {
		success = 1
	}

	values := []struct {
		name  string
		value float64
		unit  string
	}{
		{MetricRows, float64(summary.Rows), "count"},
		{MetricPages, float64(summary.Pages), "count"},
		{MetricMetricFailures, float64(summary.MetricFailures), "count"},
		{MetricDuration, float64(summary.DurationMs), "ms"},
		{MetricSuccess, success, "count"},
	}

	data := make([]types.MetricDatum, 0, len(values))
	for _, v := range values {
		datum := types.MetricDatum{
			MetricName: aws.String(v.name),
			Value:      aws.Float64(v.value),
			Unit:       mapUnit(v.unit),
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		}

		// Set storage resolution (high-resolution metrics)
		if p.storageResolution > 0 {
			datum.StorageResolution = aws.Int32(p.storageResolution)
		}

		data = append(data, datum)
	}

	return data
}

// mapUnit maps metric units to CloudWatch StandardUnit.
func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "bytes":
		return types.StandardUnitBytes
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "count":
		return types.StandardUnitCount
	default:
		return types.StandardUnitNone
	}
}

// buildAWSConfig creates an AWS config with credentials.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	// Add static credentials if provided
	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}

	// Override endpoint if specified (for LocalStack testing)
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	return cfg, nil
}
