// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wavecrate/wavecrate/internal/api"
	"github.com/wavecrate/wavecrate/internal/asset"
	"github.com/wavecrate/wavecrate/internal/audit"
	"github.com/wavecrate/wavecrate/internal/catalog"
	"github.com/wavecrate/wavecrate/internal/config"
	"github.com/wavecrate/wavecrate/internal/health"
	"github.com/wavecrate/wavecrate/internal/idempotency"
	"github.com/wavecrate/wavecrate/internal/middleware"
	"github.com/wavecrate/wavecrate/internal/mutation"
	"github.com/wavecrate/wavecrate/internal/tracing"
)

const serviceName = "wavecrate-api"

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Wavecrate API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	// Distributed tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Asset and audit stores. Without DATABASE_URL the service runs on
	// in-memory fixture-seeded stores, which is the local dev default.
	fixtures := asset.NewFixtureRepository()
	var (
		assetRepo asset.Repository
		auditRepo audit.Repository
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		assetRepo = asset.NewPostgresRepository(db, logger)
		auditRepo = audit.NewPostgresRepository(db, logger)
		dbChecker = health.NewDBChecker(db)
		logger.Info("using postgres asset store")
	} else {
		assetRepo = fixtures
		auditRepo = audit.NewInMemoryRepository()
		logger.Info("using in-memory asset store with fixtures")
	}

	// Catalog reads go through the fallback reader so listing degrades to
	// fixtures instead of failing when the primary store is unreachable.
	reader := asset.NewFallbackReader(assetRepo, fixtures, logger)
	engine := catalog.NewEngine(reader)

	// Idempotency cache
	var (
		cache        idempotency.Repository
		redisChecker api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		cache = idempotency.NewRedisRepository(client)
		redisChecker = health.NewRedisChecker(client)
		logger.Info("using redis idempotency cache")
	} else {
		cache = idempotency.NewInMemoryRepository()
		logger.Info("using in-memory idempotency cache")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	mutationMetrics := mutation.NewMetrics()
	if err := mutationMetrics.Register(registry); err != nil {
		logger.Error("failed to register mutation metrics", "error", err)
		os.Exit(1)
	}

	pipeline := mutation.NewPipeline(mutation.PipelineConfig{
		Assets:  assetRepo,
		Audit:   auditRepo,
		Cache:   cache,
		Logger:  logger,
		Metrics: mutationMetrics,
	})

	// Routes
	mux := http.NewServeMux()

	assetHandlers := api.NewAssetHandlers(reader, engine, pipeline, auditRepo)
	assetHandlers.Register(mux)

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"wavecrate-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Tracing -> Actor -> HTTPMetrics -> Logging
	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Actor(cfg.JWTSecret)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(serviceName)(handler)
	}
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic idempotency sweep. The redis backend expires keys itself, so
	// this mostly matters for the in-memory cache.
	stopCleanup := make(chan struct{})
	if cfg.CleanupIntervalMinutes > 0 {
		go idempotency.RunPeriodicCleanup(cache,
			time.Duration(cfg.CleanupIntervalMinutes)*time.Minute, stopCleanup)
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(stopCleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}

	logger.Info("server stopped")
}
