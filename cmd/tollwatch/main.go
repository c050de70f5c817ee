// Tollwatch - Risk scoring for toll transaction batches.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/tollwatch/internal/api"
	"github.com/opensource-finance/tollwatch/internal/bus"
	"github.com/opensource-finance/tollwatch/internal/cache"
	"github.com/opensource-finance/tollwatch/internal/config"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/export"
	"github.com/opensource-finance/tollwatch/internal/ingest"
	"github.com/opensource-finance/tollwatch/internal/metrics"
	"github.com/opensource-finance/tollwatch/internal/pipeline"
	"github.com/opensource-finance/tollwatch/internal/repository"
	"github.com/opensource-finance/tollwatch/internal/storage"
	"github.com/opensource-finance/tollwatch/internal/telemetry"
	"github.com/opensource-finance/tollwatch/internal/warehouse"
	"github.com/opensource-finance/tollwatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting tollwatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"storage", cfg.Storage.Type,
		"warehouse", cfg.Warehouse.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("tollwatch failed", "error", err)
		os.Exit(1)
	}
	slog.Info("tollwatch shutdown complete")
}

func run(cfg *domain.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	repo, err := repository.Open(ctx, cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}
	defer store.Close()
	slog.Info("object store initialized", "type", cfg.Storage.Type)

	m := metrics.New()

	p, err := pipeline.FromConfig(cfg.Scoring, pipeline.WithObserver(m))
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	exporters, closeExporters, err := buildExporters(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeExporters()

	svc := ingest.NewService(p, repo,
		ingest.WithCache(cacheImpl, cfg.Cache.TTL),
		ingest.WithBus(busImpl),
		ingest.WithExporters(exporters...),
		ingest.WithRecorder(m),
	)

	fileWorker := worker.NewWorker(busImpl, store, svc)
	if err := fileWorker.Start(); err != nil {
		return fmt.Errorf("start file worker: %w", err)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Service: svc,
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Metrics: m,
	}, Version)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	slog.Info("tollwatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			fileWorker.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	slog.Info("shutting down...")

	if err := fileWorker.Stop(); err != nil {
		slog.Error("failed to stop file worker", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// buildExporters wires the processed-CSV and warehouse sinks that are enabled.
func buildExporters(ctx context.Context, cfg *domain.Config) ([]ingest.NamedExporter, func(), error) {
	var exporters []ingest.NamedExporter
	var closers []func() error

	if cfg.Export.Dir != "" {
		fe, err := export.NewFileExporter(cfg.Export.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize csv export: %w", err)
		}
		exporters = append(exporters, fe)
		slog.Info("csv export enabled", "dir", cfg.Export.Dir)
	}

	if cfg.Warehouse.Enabled {
		bq, err := warehouse.NewBigQueryExporter(ctx, cfg.Warehouse)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize warehouse export: %w", err)
		}
		exporters = append(exporters, bq)
		closers = append(closers, bq.Close)
		slog.Info("warehouse export enabled",
			"project", cfg.Warehouse.ProjectID,
			"dataset", cfg.Warehouse.Dataset,
			"table", cfg.Warehouse.Table,
		)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Error("failed to close exporter", "error", err)
			}
		}
	}
	return exporters, closeAll, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  TOLLWATCH  toll transaction risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/upload                - Score an uploaded batch")
	fmt.Println("    GET  /api/transactions          - List scored transactions")
	fmt.Println("    GET  /api/transactions/alerts   - List Flagged and Investigating rows")
	fmt.Println("    GET  /api/transactions/{id}     - Get a transaction by ID")
	fmt.Println("    GET  /api/summary               - Current batch summary")
	fmt.Println("    GET  /api/metrics               - Dashboard cards")
	fmt.Println("    GET  /api/charts/{kind}         - category, severity, monthly")
	fmt.Println("    GET  /api/filenames/normalize   - Resolve a file name period")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println("    GET  /metrics                   - Prometheus metrics")
	fmt.Println()
}
