// Command analytics starts the standalone analytics aggregation service.
//
// It consumes symbol query and index reload events from Kafka, aggregates
// them in memory (query counts by mode, latency percentiles, cache hit rate,
// top and zero-result queries, reload outcomes), and exposes them at
// GET /api/v1/analytics. With PostgreSQL enabled the stats are snapshotted
// periodically, restored on startup, and listed at
// GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	var history analytics.SnapshotLister
	var saved <-chan struct{}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate postgres schema", "error", err)
			os.Exit(1)
		}
		store := aggregator.NewStore(db)
		if err := store.RestoreLatest(ctx, agg); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		}
		saved = store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		history = store
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(agg, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.Metrics.Enabled {
		chain = middleware.Metrics(metrics.New())(chain)
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if saved != nil {
		<-saved
	}

	slog.Info("analytics service stopped")
}
