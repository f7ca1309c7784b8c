package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/app"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/config"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build calculation core", "error", err)
		os.Exit(1)
	}

	logger.Info("calculation core started",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"env", cfg.AppEnv,
		"database", cfg.UsesDatabase(),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := core.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("calculation core stopped")
}
