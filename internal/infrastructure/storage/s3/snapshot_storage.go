package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreschagin/views-collector/internal/application/port"
)

const defaultPresignedTTL = 15 * time.Minute

type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// Static credentials are optional; without them the default AWS chain
	// (env, shared config, instance or Lambda role) is used.
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignedTTL    time.Duration
}

// SnapshotStorage writes snapshot objects to one bucket. Writing the same
// key again overwrites the previous object.
type SnapshotStorage struct {
	client       *s3.Client
	presign      *s3.PresignClient
	bucket       string
	presignedTTL time.Duration
}

var _ port.SnapshotStorage = (*SnapshotStorage)(nil)

func NewSnapshotStorage(ctx context.Context, cfg Config) (*SnapshotStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignedTTL <= 0 {
		cfg.PresignedTTL = defaultPresignedTTL
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if strings.TrimSpace(cfg.AccessKeyID) != "" && strings.TrimSpace(cfg.SecretAccessKey) != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &SnapshotStorage{
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       strings.TrimSpace(cfg.Bucket),
		presignedTTL: cfg.PresignedTTL,
	}, nil
}

// PutObject returns the object location as s3://bucket/key.
func (s *SnapshotStorage) PutObject(ctx context.Context, object port.SnapshotObject) (string, error) {
	key := strings.TrimSpace(object.Key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(object.Body),
	}
	if object.ContentType != "" {
		input.ContentType = aws.String(object.ContentType)
	}
	if object.ContentDisposition != "" {
		input.ContentDisposition = aws.String(object.ContentDisposition)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}

	return s.Location(key), nil
}

func (s *SnapshotStorage) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// ObjectURL returns a time-limited download link for key.
func (s *SnapshotStorage) ObjectURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignedTTL))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}

	return request.URL, nil
}
