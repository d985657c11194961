// Command searcher serves symbol search over HTTP and internal RPC.
//
// It loads the configured index source at startup, keeps the index fresh via
// filesystem watching and index-published notifications, caches results in
// Redis, and ships query analytics to Kafka.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/reload"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/rpc"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/resilience"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"index_source", cfg.Index.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}
	checker := health.NewChecker()

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate postgres schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	breaker := resilience.NewCircuitBreaker("postgres-source", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	src, err := source.New(cfg.Index, db, source.WithBreaker(breaker))
	if err != nil {
		slog.Error("failed to create index source", "error", err)
		os.Exit(1)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", health.Optional(health.PingCheck(redisClient.Ping)))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// The in-process aggregator always sees events so /api/v1/analytics
	// answers; Kafka additionally feeds the standalone analytics service.
	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	if cfg.Analytics.Enabled && cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		tracker = analytics.Trackers{aggregator, collector}
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	holder := symbolindex.NewHolder()
	reloadOpts := []reload.Option{
		reload.WithMetrics(m),
		reload.WithTracker(tracker),
		reload.WithTimeout(cfg.Index.LoadTimeout),
		reload.WithRetry(cfg.Index.LoadAttempts, 200*time.Millisecond),
	}
	if queryCache != nil {
		reloadOpts = append(reloadOpts, reload.WithCache(queryCache))
	}
	reloader := reload.New(holder, src, reloadOpts...)
	if cfg.Server.AdminToken == "" {
		slog.Warn("no admin token configured, reload and cache invalidation are unauthenticated")
	}
	checker.Register("index", health.ReadyCheck(holder.Ready, "no symbol index loaded"))

	// A failed startup load leaves the service up but not ready; watchers
	// and notifications may still deliver a good index later.
	if _, err := reloader.Reload(ctx, reload.TriggerStartup); err != nil {
		slog.Error("initial index load failed", "source", src.Name(), "error", err)
	}

	if w, ok := src.(source.Watchable); ok && cfg.Index.Watch {
		go func() {
			if err := reloader.Watch(ctx, w.WatchPath(), cfg.Index.WatchDebounce); err != nil {
				slog.Error("index watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Kafka.Enabled {
		notifications := kafka.NewBroadcastConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished, reloader.HandleNotification())
		go func() {
			if err := notifications.Start(ctx); err != nil {
				slog.Error("index notification consumer error", "error", err)
			}
		}()
		slog.Info("listening for index notifications", "topic", cfg.Kafka.Topics.IndexPublished)
	}

	exec := executor.New(holder)
	h := handler.New(exec, handler.Options{
		Cache:        queryCache,
		Tracker:      tracker,
		Metrics:      m,
		Reloader:     reloader,
		Admin:        middleware.RequireToken(cfg.Server.AdminToken),
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	analyticsH := analytics.NewHandler(aggregator, nil)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Cleanup(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = cfg.Server.CORSOrigins
		chain = middleware.CORS(cors)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *grpc.Server
	if cfg.RPC.Port > 0 {
		rpcServer = grpc.NewServer()
		rpc.New(exec, reloader, cfg.Search.MaxResults, rpc.WithAdminToken(cfg.Server.AdminToken)).Register(rpcServer)
		ln, err := grpc.Listen(fmt.Sprintf(":%d", cfg.RPC.Port))
		if err != nil {
			slog.Error("failed to start rpc listener", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Serve(ln); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		if rpcServer != nil {
			rpcServer.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
