// Package main is the entrypoint for the Sharetrack API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sharetrack/sharetrack/internal/cache"
	"github.com/sharetrack/sharetrack/internal/config"
	"github.com/sharetrack/sharetrack/internal/handler"
	"github.com/sharetrack/sharetrack/internal/metrics"
	"github.com/sharetrack/sharetrack/internal/middleware"
	"github.com/sharetrack/sharetrack/internal/mirror"
	"github.com/sharetrack/sharetrack/internal/repository"
	"github.com/sharetrack/sharetrack/internal/server"
	"github.com/sharetrack/sharetrack/internal/tracker"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("failed to resolve time zone", "error", err)
		os.Exit(1)
	}

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")
	cacheClient.SetSnapshotTTL(cfg.MirrorPersistTTL)

	metricsRecorder := metrics.NewInMemory()

	// Event repository over the shared pool
	eventRepo := repository.NewEventRepository(repo)

	// Local mirror, restored from its last persisted snapshot
	localMirror := mirror.New(cfg.MirrorHistoryLimit, logger)
	if snapshots, err := cacheClient.LoadFileSnapshots(ctx); err != nil {
		logger.Warn("failed to restore mirror snapshots", "error", err)
	} else if len(snapshots) > 0 {
		localMirror.Restore(snapshots)
		logger.Info("mirror restored from snapshot", "files", len(snapshots))
	}

	// Recorder with replay spill queue
	spill := tracker.NewSpill(cacheClient.Client(), logger, metricsRecorder)
	recorder := tracker.NewRecorder(eventRepo, localMirror, spill, logger, metricsRecorder)
	recorder.SetWriteTimeout(cfg.StoreWriteTimeout)

	// Replay worker drains the spill queue back into the store
	replayWorker := tracker.NewReplayWorker(cacheClient.Client(), eventRepo, logger, tracker.NewConsumerID(), metricsRecorder)
	replayWorker.SetInvalidator(cacheClient)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	go func() {
		if err := replayWorker.Run(workerCtx); err != nil && err != context.Canceled {
			logger.Error("replay worker exited", "error", err)
		}
	}()

	// Reconciler replays store counters into the mirror and persists
	// snapshots for the next restart
	reconciler := mirror.NewReconciler(localMirror, eventRepo, cacheClient, cfg.MirrorReconcileEvery, logger)
	reconcilerCtx, reconcilerCancel := context.WithCancel(ctx)
	defer reconcilerCancel()
	go func() {
		if err := reconciler.Run(reconcilerCtx); err != nil && err != context.Canceled {
			logger.Error("reconciler exited", "error", err)
		}
	}()

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	trackHandler := handler.NewTrackHandler(recorder, logger)
	trackHandler.SetMaxBodySize(cfg.MaxRequestBodySize)
	statsHandler := handler.NewStatsHandler(eventRepo, cacheClient, localMirror, logger, metricsRecorder, loc)
	statsHandler.SetCacheTTL(cfg.StatsCacheTTL)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	r := setupRouter(h, healthHandler, trackHandler, statsHandler, metricsHandler, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// LIFO: the mirror stops last so in-flight requests can still read it
	srv.OnShutdown("mirror", localMirror.Shutdown)
	srv.OnShutdown("reconciler", func(ctx context.Context) error {
		reconcilerCancel()
		return reconciler.Shutdown(ctx)
	})
	srv.OnShutdown("replay_worker", func(ctx context.Context) error {
		workerCancel()
		return replayWorker.Shutdown(ctx)
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"time_zone", cfg.TimeZone,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	format := cfg.LogFormat
	if format == "" {
		if cfg.IsDevelopment() {
			format = "text"
		} else {
			format = "json"
		}
	}

	if format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	trackHandler *handler.TrackHandler,
	statsHandler *handler.StatsHandler,
	metricsHandler *handler.MetricsHandler,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	if cfg.IsProduction() && len(corsCfg.AllowedOrigins) == 0 {
		logger.Warn("no CORS origins configured; cross-origin requests will be rejected")
	}
	r.Use(middleware.CORS(corsCfg))

	// Health and metrics endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Tracking and reporting
	r.Post("/track/{action}", trackHandler.Track)
	r.Get("/stats", statsHandler.GetStats)
	r.Get("/file/{fileId}", statsHandler.GetFileStats)

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
