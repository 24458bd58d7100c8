package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"docflow/apps/ingestion/features/job"
	"docflow/apps/ingestion/internal/config"
	"docflow/apps/ingestion/internal/extract"
	"docflow/apps/ingestion/internal/middleware"
	"docflow/apps/ingestion/internal/text"
	"docflow/apps/ingestion/internal/worker"

	"github.com/nsqio/go-nsq"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Handler   http.Handler
	Processor *worker.Processor

	cfg *config.Config
}

// New wires the ingestion pipeline and the operator API. db may be nil, in
// which case terminal failures are only reported on the result topic and the
// /jobs routes are not registered.
func New(
	cfg *config.Config,
	db *sql.DB,
	store worker.ObjectStore,
	embedders worker.EmbedderProvider,
	pub worker.Publisher,
	logger *slog.Logger,
) (*App, error) {
	if store == nil || pub == nil {
		return nil, errors.New("object store and publisher are required")
	}

	extractor := extract.NewService(extract.Limits{
		MaxDecompressedBytes: cfg.MaxDecompressedSize(),
		MaxArchiveDepth:      cfg.MaxArchiveDepth,
		Timeout:              cfg.ExtractionTimeout,
	})

	chunkOpts := text.DefaultOptions()
	if cfg.EmbedderBatchSize > 0 {
		chunkOpts.EmbedBatchSize = cfg.EmbedderBatchSize
	}
	chunker := text.NewService(chunkOpts)

	mux := http.NewServeMux()

	var failures worker.FailureRecorder
	if db != nil {
		// Feature: Job
		jobRepo := job.NewPostgresRepo(db)
		jobService := job.NewService(jobRepo, pub, logger)
		jobHandler := job.NewHandler(jobService)
		failures = jobRepo

		mux.Handle("GET /jobs/failed", middleware.CorrelationID(http.HandlerFunc(jobHandler.List)))
		mux.Handle("GET /jobs/failed/count", middleware.CorrelationID(http.HandlerFunc(jobHandler.Count)))
		mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(http.HandlerFunc(jobHandler.Retry)))
	}

	processor := worker.NewProcessor(store, extractor, chunker, embedders, pub, failures, worker.Options{
		MaxAttempts:     cfg.MaxAttempts,
		MaxFileSize:     cfg.MaxFileSize(),
		JobTimeout:      cfg.JobTimeout,
		ChunksKeyPrefix: cfg.ChunksKeyPrefix,
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Processor: processor,
		cfg:       cfg,
	}, nil
}

// NSQConfig returns the consumer configuration. Attempts are counted by the
// processor, so go-nsq's own MaxAttempts is disabled.
func NSQConfig(cfg *config.Config) *nsq.Config {
	c := nsq.NewConfig()
	c.MaxInFlight = max(cfg.NSQMaxInFlight, cfg.WorkerConcurrency)
	c.MaxAttempts = 0
	c.DefaultRequeueDelay = cfg.RequeueDelay
	c.MaxRequeueDelay = cfg.MaxRequeueDelay
	c.MaxBackoffDuration = cfg.MaxBackoff
	c.MsgTimeout = cfg.NSQMsgTimeout
	return c
}

func (a *App) startConsumer(ctx context.Context) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, a.cfg.NSQChannel, NSQConfig(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}

	handler := worker.NewConsumer(ctx, a.Processor, a.cfg.NSQMsgTimeout/2)
	consumer.AddConcurrentHandlers(handler, max(a.cfg.WorkerConcurrency, 1))

	// Without lookupd (local runs, tests) connect to nsqd directly.
	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq connect error: %w", err)
	}

	slog.Info("ingestion consumer started",
		"topic", config.TopicIngestDocument,
		"channel", a.cfg.NSQChannel,
		"concurrency", a.cfg.WorkerConcurrency)
	return consumer, nil
}

// Run consumes ingestion tasks and serves the operator API until ctx is
// cancelled. In-flight messages are handed back to nsqd before it returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.ServerPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	consumer, err := a.startConsumer(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutting down...")

		consumer.Stop()
		<-consumer.StopChan

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		consumer.Stop()
		<-consumer.StopChan
		return err
	}
	<-stopped
	return nil
}
