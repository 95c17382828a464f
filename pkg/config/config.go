package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Graph      GraphConfig
	Collector  CollectorConfig
	S3         S3Config
	Slack      SlackConfig
	Dynamo     DynamoConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	Daemon     DaemonConfig
	Security   SecurityConfig
	LogLevel   string
}

type GraphConfig struct {
	AccessToken    string
	UserID         string
	Version        string
	BaseURL        string
	PageSize       int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type CollectorConfig struct {
	CutoffUTC         string
	MaxPages          int
	Retries           int
	RetryBackoff      time.Duration
	AllowedMediaTypes string
	MetricName        string
	BucketWidth       time.Duration
	KeyPrefix         string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignedTTL    time.Duration
}

type SlackConfig struct {
	WebhookURL      string
	Timeout         time.Duration
	NotifyOnSuccess bool
}

type DynamoConfig struct {
	Enabled         bool
	TableRuns       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RunTTL          time.Duration
	StrongReads     bool
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	StatusTTL    time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
	Subject string
}

type CloudWatchConfig struct {
	MetricsEnabled  bool
	LogsEnabled     bool
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Namespace       string
	LogGroup        string
	LogStream       string
	FlushInterval   time.Duration
}

type DaemonConfig struct {
	Schedule        string
	Port            string
	RunTimeout      time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type SecurityConfig struct {
	AuthEnabled bool
	AuthToken   string

	// RunTriggersPerMinute limits POST /api/v1/collector/run per client; 0 disables.
	RunTriggersPerMinute int
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv reads the process environment only.
func LoadFromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Graph: GraphConfig{
			AccessToken:    getEnv("ACCESS_TOKEN", ""),
			UserID:         getEnv("IG_USER_ID", ""),
			Version:        getEnv("GRAPH_API_VERSION", "v23.0"),
			BaseURL:        getEnv("GRAPH_BASE_URL", "https://graph.facebook.com"),
			PageSize:       p.intVar("PAGE_SIZE", 100),
			RequestTimeout: p.durationVar("REQUEST_TIMEOUT", "12s"),
			RateLimitRPS:   p.floatVar("GRAPH_RATE_LIMIT_RPS", 0),
			RateLimitBurst: p.intVar("GRAPH_RATE_LIMIT_BURST", 1),
		},
		Collector: CollectorConfig{
			CutoffUTC:         getEnv("CUTOFF_UTC", "2025-10-01T15:00:00+0000"),
			MaxPages:          p.intVar("MAX_PAGES", 50),
			Retries:           p.intVar("RETRIES", 2),
			RetryBackoff:      p.durationVar("RETRY_BACKOFF", "1.2s"),
			AllowedMediaTypes: getEnv("ALLOWED_MEDIA_TYPES", "IMAGE,VIDEO,CAROUSEL_ALBUM"),
			MetricName:        getEnv("METRIC_NAME", "views"),
			BucketWidth:       p.durationVar("BUCKET_WIDTH", "10m"),
			KeyPrefix:         getEnv("SNAPSHOT_KEY_PREFIX", "insta-views"),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
			PresignedTTL:    p.durationVar("S3_PRESIGNED_TTL", "15m"),
		},
		Slack: SlackConfig{
			WebhookURL:      getEnv("SLACK_WEBHOOK_URL", ""),
			Timeout:         p.durationVar("SLACK_TIMEOUT", "5s"),
			NotifyOnSuccess: getEnvBool("NOTIFY_ON_SUCCESS", true),
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMO_ENABLED", false),
			TableRuns:       getEnv("DYNAMO_TABLE_RUNS", "collector-runs"),
			Region:          getEnv("DYNAMO_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:        getEnv("DYNAMO_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMO_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMO_SECRET_ACCESS_KEY", ""),
			RunTTL:          time.Duration(p.intVar("DYNAMO_RUN_TTL_DAYS", 30)) * 24 * time.Hour,
			StrongReads:     getEnvBool("DYNAMO_STRONG_READS", false),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("POSTGRES_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "collector"),
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           p.intVar("REDIS_DB", 0),
			StatusTTL:    p.durationVar("REDIS_STATUS_TTL", "24h"),
			PoolSize:     5,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Subject: getEnv("NATS_SUBJECT", "collector.snapshot"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:  getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:     getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:          getEnv("CLOUDWATCH_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "ViewsCollector"),
			LogGroup:        getEnv("CLOUDWATCH_LOG_GROUP", "/views-collector"),
			LogStream:       getEnv("CLOUDWATCH_LOG_STREAM", "collector"),
			FlushInterval:   p.durationVar("CLOUDWATCH_FLUSH_INTERVAL", "10s"),
		},
		Daemon: DaemonConfig{
			Schedule:        getEnv("COLLECTOR_SCHEDULE", "*/10 * * * *"),
			Port:            getEnv("COLLECTOR_PORT", "8081"),
			RunTimeout:      p.durationVar("COLLECTOR_RUN_TIMEOUT", "8m"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AuthEnabled: getEnvBool("AUTH_ENABLED", false),
			AuthToken:   getEnv("AUTH_BEARER_TOKEN", ""),

			RunTriggersPerMinute: p.intVar("RUN_TRIGGER_RATE_PER_MINUTE", 6),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Graph.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be at least 1")
	}
	if c.Collector.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if c.Collector.Retries < 0 {
		return fmt.Errorf("RETRIES must not be negative")
	}
	if c.Collector.RetryBackoff < 0 {
		return fmt.Errorf("RETRY_BACKOFF must not be negative")
	}
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	return nil
}

// RequireCollector checks the settings every collector entrypoint needs.
// The synthetic generator does not call it.
func (c *Config) RequireCollector() error {
	missing := make([]string, 0)
	if c.Graph.AccessToken == "" {
		missing = append(missing, "ACCESS_TOKEN")
	}
	if c.Graph.UserID == "" {
		missing = append(missing, "IG_USER_ID")
	}
	if c.S3.Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// parser keeps the first parse error so Load can report it by variable name.
type parser struct {
	err error
}

func (p *parser) intVar(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return value
}

func (p *parser) floatVar(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return value
}

func (p *parser) durationVar(key, defaultValue string) time.Duration {
	value, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: %w", key, err))
		return 0
	}
	return value
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
