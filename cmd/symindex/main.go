// Command symindex builds a symbol index from generated search data and
// publishes it: a snapshot file, the symbol_targets table when PostgreSQL is
// enabled, and an index-published event when Kafka is enabled.
//
// Usage:
//
//	go run ./cmd/symindex [-config configs/development.yaml] [-path docs/html/search] [-out data/snapshots]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	path := flag.String("path", "", "search data file or directory (overrides index.path)")
	out := flag.String("out", "", "snapshot directory (overrides index.snapshotDir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *path != "" {
		cfg.Index.Path = *path
		if info, err := os.Stat(*path); err == nil && !info.IsDir() {
			cfg.Index.Source = config.SourceFile
		} else {
			cfg.Index.Source = config.SourceDir
		}
	}
	if *out != "" {
		cfg.Index.SnapshotDir = *out
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Index.Source == config.SourceSnapshot || cfg.Index.Source == config.SourcePostgres {
		slog.Error("symindex builds from search data; use a file or dir source", "source", cfg.Index.Source)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.New(cfg.Index, nil)
	if err != nil {
		slog.Error("failed to create index source", "error", err)
		os.Exit(1)
	}
	slog.Info("building symbol index", "source", src.Name())

	start := time.Now()
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Index.LoadTimeout)
	idx, err := source.Load(loadCtx, src)
	cancel()
	if err != nil {
		slog.Error("failed to build index", "source", src.Name(), "error", err)
		os.Exit(1)
	}
	slog.Info("symbol index built",
		"entries", idx.Len(),
		"targets", idx.TargetCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	opts := []publisher.Option{publisher.WithSnapshotDir(cfg.Index.SnapshotDir)}
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
		opts = append(opts, publisher.WithPostgres(db))
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
		defer producer.Close()
		opts = append(opts, publisher.WithProducer(producer))
	}

	pub := publisher.New(opts...)
	err = resilience.Retry(ctx, "index-publish", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		event, err := pub.Publish(ctx, idx, src.Name())
		if err != nil {
			return err
		}
		slog.Info("symbol index published",
			"snapshot", event.Snapshot,
			"postgres", event.Postgres,
			"entries", event.Entries,
		)
		return nil
	})
	if err != nil {
		slog.Error("failed to publish index", "error", err)
		os.Exit(1)
	}
}
