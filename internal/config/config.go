package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docflow"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docflow"`

	NSQLookupd     string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost       string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP       string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQChannel     string `envconfig:"NSQ_CHANNEL" default:"ingestion-worker"`
	NSQMaxInFlight int    `envconfig:"NSQ_MAX_IN_FLIGHT" default:"8"`
	// NSQMsgTimeout is negotiated with nsqd; in-flight messages are touched
	// at half this interval.
	NSQMsgTimeout time.Duration `envconfig:"NSQ_MSG_TIMEOUT" default:"60s"`

	// Worker
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	MaxAttempts       uint16        `envconfig:"MAX_ATTEMPTS" default:"5"`
	JobTimeout        time.Duration `envconfig:"JOB_TIMEOUT" default:"10m"`
	RequeueDelay      time.Duration `envconfig:"REQUEUE_DELAY" default:"15s"`
	MaxRequeueDelay   time.Duration `envconfig:"MAX_REQUEUE_DELAY" default:"5m"`
	MaxBackoff        time.Duration `envconfig:"MAX_BACKOFF_DURATION" default:"2m"`

	// Limits
	MaxFileSizeMB         int64         `envconfig:"MAX_FILE_SIZE_MB" default:"100"`
	MaxDecompressedSizeMB int64         `envconfig:"MAX_DECOMPRESSED_MB" default:"500"`
	ExtractionTimeout     time.Duration `envconfig:"EXTRACTION_TIMEOUT" default:"5m"`
	MaxArchiveDepth       int           `envconfig:"MAX_ARCHIVE_DEPTH" default:"3"`

	// Object storage
	S3Region         string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint       string `envconfig:"S3_ENDPOINT"`
	S3AccessKey      string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey      string `envconfig:"S3_SECRET_KEY"`
	S3ForcePathStyle bool   `envconfig:"S3_FORCE_PATH_STYLE" default:"true"`
	ChunksKeyPrefix  string `envconfig:"CHUNKS_KEY_PREFIX" default:"chunks"`

	// Embedders (semantic chunking)
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	EmbedderBatchSize int           `envconfig:"EMBEDDER_BATCH_SIZE" default:"64"`
	EmbedderRateLimit float64       `envconfig:"EMBEDDER_RATE_LIMIT" default:"10"`
	EmbedderTimeout   time.Duration `envconfig:"EMBEDDER_TIMEOUT" default:"60s"`

	EnableFailureStore bool   `envconfig:"ENABLE_FAILURE_STORE" default:"true"`
	MigrationPath      string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort int    `envconfig:"SERVER_PORT" default:"8082"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win; .env files are optional.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.EnableFailureStore {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	if c.NSQDHost == "" {
		return fmt.Errorf("%w: NSQD_HOST", ErrMissingRequired)
	}
	if c.NSQLookupd == "" {
		return fmt.Errorf("%w: NSQ_LOOKUPD", ErrMissingRequired)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("%w: WORKER_CONCURRENCY must be >= 1", ErrInvalidValue)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: MAX_ATTEMPTS must be >= 1", ErrInvalidValue)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: MAX_FILE_SIZE_MB must be > 0", ErrInvalidValue)
	}
	if c.MaxDecompressedSizeMB < c.MaxFileSizeMB {
		return fmt.Errorf("%w: MAX_DECOMPRESSED_MB must be >= MAX_FILE_SIZE_MB", ErrInvalidValue)
	}
	if c.MaxArchiveDepth < 0 {
		return fmt.Errorf("%w: MAX_ARCHIVE_DEPTH must be >= 0", ErrInvalidValue)
	}
	if c.NSQMsgTimeout < time.Second {
		return fmt.Errorf("%w: NSQ_MSG_TIMEOUT must be >= 1s", ErrInvalidValue)
	}
	if c.JobTimeout <= 0 || c.ExtractionTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidValue)
	}
	return nil
}

// MaxFileSize returns the download cap in bytes.
func (c *Config) MaxFileSize() int64 {
	return c.MaxFileSizeMB << 20
}

// MaxDecompressedSize returns the per-extraction decompression budget in bytes.
func (c *Config) MaxDecompressedSize() int64 {
	return c.MaxDecompressedSizeMB << 20
}
