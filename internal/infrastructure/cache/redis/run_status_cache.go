package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
)

const (
	DefaultLastRunKey = "collector:last_run"
	DefaultTTL        = 24 * time.Hour
)

// Options configures the connection of RunStatusCache.
type Options struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RunStatusCache stores the last run summary as JSON under a single key.
type RunStatusCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ port.RunStatusCache = (*RunStatusCache)(nil)

// NewRunStatusCache connects to Redis and pings it before returning.
func NewRunStatusCache(opts Options) (*RunStatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   3,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRunStatusCache(client, opts.Key, opts.TTL), nil
}

func newRunStatusCache(client *redis.Client, key string, ttl time.Duration) *RunStatusCache {
	if key == "" {
		key = DefaultLastRunKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RunStatusCache{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (c *RunStatusCache) SaveLastRun(ctx context.Context, summary dto.RunSummaryDTO) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (c *RunStatusCache) LastRun(ctx context.Context) (*dto.RunSummaryDTO, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var summary dto.RunSummaryDTO
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return &summary, nil
}

// Close closes the Redis connection
func (c *RunStatusCache) Close() error {
	return c.client.Close()
}
