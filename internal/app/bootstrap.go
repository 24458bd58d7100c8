package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docflow/apps/ingestion/internal/adapter/embedding"
	"docflow/apps/ingestion/internal/adapter/s3"
	"docflow/apps/ingestion/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
)

type Dependencies struct {
	// DB is nil when the failure store is disabled.
	DB          *sql.DB
	NSQProducer *nsq.Producer
	Store       *s3.Store
	Embedders   *embedding.Registry
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	if cfg.EnableFailureStore {
		db, err := openDB(ctx, cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db
	}

	// Object storage
	store, err := s3.New(ctx, s3.Config{
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("s3 client error: %w", err)
	}
	deps.Store = store

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	createTopics(cfg.NSQDHTTP, config.TopicIngestDocument, config.TopicIngestResult)

	deps.Embedders = embedding.NewRegistry(embedding.Options{
		GeminiAPIKey: cfg.GeminiAPIKey,
		RateLimit:    cfg.EmbedderRateLimit,
		Timeout:      cfg.EmbedderTimeout,
	})

	return deps, nil
}

// Close releases everything Bootstrap opened. Safe on a partially built value.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.Embedders != nil {
		if err := d.Embedders.Close(); err != nil {
			slog.Warn("failed to close embedders", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func openDB(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied")
	return db, nil
}

// PingWithRetry pings up to attempts times (at least once), sleeping delay
// between tries. It gives up early when ctx is done.
func PingWithRetry(ctx context.Context, p Pinger, attempts int, delay time.Duration) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = p.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}

// createTopics pre-creates topics through the nsqd HTTP API so lookupd
// consumers do not see 404s before the first publish.
func createTopics(nsqdHTTP string, topics ...string) {
	if nsqdHTTP == "" {
		return
	}
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, t := range topics {
			create(t)
		}
	}()
}
