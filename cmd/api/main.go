// Package main is the entrypoint for the RequestPing API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/requestping/requestping/internal/app"
	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/config"
	"github.com/requestping/requestping/internal/handler"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/middleware"
	"github.com/requestping/requestping/internal/migration"
	"github.com/requestping/requestping/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := migration.Up(cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(promRegistry)

	a, err := app.New(ctx, cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("connected to database and redis",
		"database_url", app.RedactURL(cfg.DatabaseURL),
		"redis_url", app.RedactURL(cfg.RedisURL),
		"registry", cfg.RegistrySource,
	)

	router := setupRouter(a, promRegistry)

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.WarmRegistry(gctx, a.Registry, logger)
		return nil
	})

	// Stopped once the HTTP server has drained, not on the signal itself.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	if cfg.ResubmitEnabled {
		worker := a.NewWorker()
		g.Go(func() error {
			return worker.Run(workerCtx)
		})
		srv.OnShutdown("resubmission worker", func(context.Context) error {
			cancelWorker()
			return nil
		})
	}

	g.Go(func() error {
		err := srv.Run(gctx)
		cancelWorker()
		return err
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"resubmit_enabled", cfg.ResubmitEnabled,
	)

	return g.Wait()
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(a *app.App, gatherer prometheus.Gatherer) *chi.Mux {
	cfg := a.Config
	logger := a.Logger

	h := handler.New()
	healthHandler := handler.NewHealthHandler(a.Repo, a.Cache)
	metricsHandler := handler.NewMetricsHandler(gatherer)
	requestHandler := handler.NewRequestHandler(a.Requests, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(a.APIKeys, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)
	r.Get("/", h.Index)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Limiter:       a.Cache,
		Metrics:       a.Metrics,
		CallerEnabled: cfg.RateLimitAPIEnabled,
		IPEnabled:     cfg.RateLimitIPEnabled,
		IPRPS:         cfg.RateLimitIPRPS,
		IPBurst:       cfg.RateLimitIPBurst,
	}

	authCfg := middleware.AuthConfig{
		Logger:              logger,
		Keys:                a.Repo,
		Users:               a.Repo,
		Cache:               a.Cache,
		Tokens:              auth.NewTokenVerifier(cfg.JWTSecret),
		Metrics:             a.Metrics,
		DefaultMonthlyLimit: cfg.DefaultMonthlyRequestLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public catalog, limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Get("/record-types", requestHandler.RecordTypes)
			r.Get("/offices", requestHandler.Offices)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitCaller(rateLimitCfg))

			r.Route("/requests", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", requestHandler.List)
				r.With(middleware.RequireRead()).Get("/{id}", requestHandler.Get)
				r.With(middleware.RequireWrite()).Post("/", requestHandler.Create)
				r.With(middleware.RequireWrite()).Post("/{id}/submit", requestHandler.Submit)
			})

			r.With(middleware.RequireRead()).Get("/quota", requestHandler.Quota)

			r.Route("/api-keys", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", apiKeyHandler.List)
				r.With(middleware.RequireAdmin()).Post("/", apiKeyHandler.Create)
				r.With(middleware.RequireAdmin()).Delete("/{id}", apiKeyHandler.Revoke)
			})
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
