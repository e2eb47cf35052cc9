// Package main is the entrypoint for the Sentra API server.
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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentra/sentra/internal/cache"
	"github.com/sentra/sentra/internal/config"
	"github.com/sentra/sentra/internal/handler"
	"github.com/sentra/sentra/internal/intel"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/middleware"
	"github.com/sentra/sentra/internal/reputation"
	"github.com/sentra/sentra/internal/repository"
	"github.com/sentra/sentra/internal/server"
	"github.com/sentra/sentra/internal/service"
)

func main() {
	ctx := context.Background()

	// .env is a development convenience; production deployments set real
	// environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

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

	var recorder metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheus(prometheus.DefaultRegisterer)
	}

	lists := intel.Load(intel.Config{
		TorExitNodesPath:      cfg.TorExitNodesPath,
		ProxyListPath:         cfg.ProxyListPath,
		DisposableDomainsPath: cfg.DisposableDomainsPath,
	}, logger)

	httpClient := reputation.NewHTTPClient(cfg.ReputationTimeout)
	ipInfoClient := reputation.NewIPInfoClient(httpClient, cfg.IPInfoToken, cacheClient, recorder, logger)
	abuseClient := reputation.NewAbuseClient(httpClient, cfg.AbuseIPDBKey, cacheClient, recorder, logger)

	ingestService := service.NewIngestService(repo, ipInfoClient, abuseClient, lists, recorder, logger, cfg.VelocityWindow)
	blockService := service.NewBlockService(repo, recorder, logger)
	verifyService := service.NewVerifyService(repo, logger)

	h := handler.New(logger)
	healthHandler := handler.NewHealthHandler(repo, cacheClient, logger)
	ingestHandler := handler.NewIngestHandler(ingestService, logger)
	blockHandler := handler.NewBlockHandler(blockService, logger)
	verifyHandler := handler.NewVerifyHandler(verifyService, logger)

	r := setupRouter(h, healthHandler, ingestHandler, blockHandler, verifyHandler, cacheClient, recorder, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"ipinfo_enabled", cfg.IPInfoToken != "",
		"abuseipdb_enabled", cfg.AbuseIPDBKey != "",
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
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
	ingestHandler *handler.IngestHandler,
	blockHandler *handler.BlockHandler,
	verifyHandler *handler.VerifyHandler,
	cacheClient *cache.Cache,
	recorder metrics.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	if cfg.MetricsEnabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	// Root info endpoint
	r.Get("/", h.Root)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Metrics: recorder,
		Enabled: cfg.RateLimitIngestEnabled,
	}

	r.Route("/v1", func(r chi.Router) {
		// Ingestion endpoints are called by untrusted browsers, so they
		// sit behind the per-IP token bucket.
		r.With(middleware.RateLimitIngest(rateLimitCfg)).Post("/collect", ingestHandler.Collect)
		r.With(middleware.RateLimitIngest(rateLimitCfg)).Post("/verify-trial", verifyHandler.VerifyTrial)

		r.Route("/blocks", func(r chi.Router) {
			r.Get("/", blockHandler.List)
			r.Post("/", blockHandler.Create)
			r.Delete("/{id}", blockHandler.Delete)
		})
	})

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
