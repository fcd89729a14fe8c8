// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/eventlog-go/internal/cache"
	"github.com/olegiv/eventlog-go/internal/catalog"
	"github.com/olegiv/eventlog-go/internal/config"
	"github.com/olegiv/eventlog-go/internal/dispatch"
	"github.com/olegiv/eventlog-go/internal/handler/api"
	"github.com/olegiv/eventlog-go/internal/logger"
	"github.com/olegiv/eventlog-go/internal/logging"
	"github.com/olegiv/eventlog-go/internal/logquery"
	"github.com/olegiv/eventlog-go/internal/middleware"
	"github.com/olegiv/eventlog-go/internal/purge"
	"github.com/olegiv/eventlog-go/internal/store"
	"github.com/olegiv/eventlog-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "eventlogd - event log service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_DB_DRIVER        Database driver: sqlite|mysql (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_DB_PATH          SQLite database path (default: ./data/eventlog.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_DB_DSN           MySQL DSN (required for mysql driver)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_SERVER_PORT     Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_RETENTION_DAYS  Days to keep events, 0 = forever (default: 60)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_API_TOKEN       Bearer token required for event ingest\n")
		_, _ = fmt.Fprintf(os.Stderr, "  EVENTLOG_REDIS_URL       Redis URL for a shared query cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "\nFor more information, see: https://github.com/olegiv/eventlog-go\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("eventlogd %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(log)

	// Ensure data directory exists for the sqlite driver
	if cfg.DBDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	slog.Info("initializing database", "driver", cfg.DBDriver)
	db, err := store.NewDB(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db, cfg.DBDriver); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	st := store.New(db)
	recovery := store.NewRecovery(db, cfg.DBDriver, log)

	// Query cache: Redis when configured, in-process LRU otherwise.
	queryCache, err := cache.NewCache(cache.Config{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      cfg.CacheTTL(),
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: time.Minute,
	})
	if err != nil {
		slog.Warn("cache unavailable, queries will not be cached", "error", err)
		queryCache = nil
	} else {
		defer func() {
			if err := queryCache.Close(); err != nil {
				slog.Error("error closing cache", "error", err)
			}
		}()
	}
	if cfg.UseRedisCache() && queryCache != nil {
		slog.Info("query cache initialized", "backend", "redis", "url", cfg.RedisURL)
	} else if queryCache != nil {
		slog.Info("query cache initialized", "backend", "memory", "max_size", cfg.CacheMaxSize)
	}

	// Event dispatcher feeds subscribers after every stored event.
	ctx := context.Background()
	dispatcher := dispatch.NewDispatcher(log, dispatch.DefaultConfig())
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	gate := logger.NewGate()
	loggers := logger.NewFactory(st, recovery, gate, dispatcher, logger.Options{
		DedupWindow: cfg.DedupWindow(),
	})

	reg := catalog.Default()
	engine := logquery.NewEngine(st, logquery.Options{
		Recovery: recovery,
		Catalog:  reg,
		Cache:    queryCache,
		CacheTTL: cfg.CacheTTL(),
	})
	dispatcher.Subscribe(engine.LoggedSubscriber())

	// Route WARN and ERROR application logs into the event log itself.
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	log = slog.New(logging.NewAuditHandler(textHandler, loggers.Get("system")))
	slog.SetDefault(log)

	// Retention purge, scheduled nightly.
	systemLogger := loggers.Get("system")
	purgeService := purge.NewService(st, cfg.RetentionDays, log)
	purgeService.OnComplete(func(horizonDays int, rowsDeleted int64) {
		_, _ = systemLogger.Info(ctx, "Purged {count} events older than {days} days", map[string]any{
			"count": rowsDeleted,
			"days":  horizonDays,
		})
	})
	purgeScheduler := purge.NewScheduler(purgeService, log)
	if err := purgeScheduler.Start(); err != nil {
		return fmt.Errorf("starting purge scheduler: %w", err)
	}
	defer purgeScheduler.Stop()
	slog.Info("purge scheduler started", "retention_days", cfg.RetentionDays)

	// HTTP surface.
	apiHandler := api.NewHandler(engine, loggers, log)
	healthHandler := api.NewHealthHandler(db, versionInfo)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(middleware.TokenAuth(cfg.APIToken, "api"))

		r.Get("/events", apiHandler.ListEvents)
		r.Get("/events/occasions", apiHandler.ListOccasions)
		r.Post("/events", apiHandler.CreateEvent)
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	_, _ = systemLogger.Info(ctx, "Service started", map[string]any{"version": versionInfo.Version})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	_, _ = systemLogger.Info(ctx, "Service stopped", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
