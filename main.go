package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docflow/apps/ingestion/internal/app"
	"docflow/apps/ingestion/internal/config"
	"docflow/apps/ingestion/internal/logger"
)

func main() {
	// Initialize structured logger
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.LogLevel),
	})))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to bootstrap", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// 3. Application
	application, err := app.New(cfg, deps.DB, deps.Store, deps.Embedders, deps.NSQProducer, log)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("app exited with error", "error", err)
		deps.Close()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
