// Package app assembles the request pipeline from configuration. The API
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/requestping/requestping/internal/cache"
	"github.com/requestping/requestping/internal/config"
	"github.com/requestping/requestping/internal/letter"
	"github.com/requestping/requestping/internal/mail"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/registry"
	"github.com/requestping/requestping/internal/repository"
	"github.com/requestping/requestping/internal/service"
	"github.com/requestping/requestping/internal/submission"
)

// App holds the long-lived collaborators.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Repo     *repository.Repository
	Cache    *cache.Cache
	Registry registry.Registry

	Orchestrator *submission.Orchestrator
	Requests     *service.RequestService
	APIKeys      *service.APIKeyService
}

// New connects to Postgres and Redis and builds the pipeline. The caller
// owns Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) (*App, error) {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %s", SanitizeError(err, cfg.DatabaseURL))
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connect redis: %s", SanitizeError(err, cfg.RedisURL))
	}

	reg := NewRegistry(cfg, cacheClient, logger, recorder)

	transport, err := NewTransport(cfg, logger)
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return nil, err
	}

	orch := submission.NewOrchestrator(reg, letter.NewComposer(cfg.FromEmail), transport, repo, logger, recorder)
	orch.SetMaxAttempts(cfg.ResubmitMaxAttempts)
	orch.SetLocker(cacheClient, cfg.MailSendTimeout)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      recorder,
		Repo:         repo,
		Cache:        cacheClient,
		Registry:     reg,
		Orchestrator: orch,
		Requests:     service.NewRequestService(repo, reg, orch, logger, recorder),
		APIKeys:      service.NewAPIKeyService(repo, logger),
	}, nil
}

// NewWorker builds the resubmission sweeper.
func (a *App) NewWorker() *submission.Worker {
	w := submission.NewWorker(a.Repo, a.Orchestrator, a.Logger, a.Metrics)
	w.SetBatchSize(a.Config.ResubmitBatchSize)
	w.SetPollInterval(a.Config.ResubmitInterval)
	w.SetMaxAttempts(a.Config.ResubmitMaxAttempts)
	return w
}

// WarmRegistry loads a refreshable registry before the first request needs
// it and reports whether a refresh was attempted. A failure is only logged:
// routing still falls back as usual.
func WarmRegistry(ctx context.Context, reg registry.Registry, logger *slog.Logger) bool {
	r, ok := reg.(registry.Refresher)
	if !ok {
		return false
	}
	if err := r.Refresh(ctx); err != nil {
		logger.Warn("registry warm-up failed", "error", err)
		return true
	}
	logger.Info("registry warmed")
	return true
}

// Close releases connections.
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}

// NewRegistry selects the office registry named by REGISTRY_SOURCE. store
// may be nil, in which case directory snapshots live in memory only.
func NewRegistry(cfg *config.Config, store registry.SnapshotStore, logger *slog.Logger, recorder metrics.Recorder) registry.Registry {
	if !cfg.UsesDirectoryRegistry() {
		return registry.NewVA(logger, recorder)
	}
	client := registry.NewFOIAGovClient(cfg.FOIAAPIURL, cfg.FOIAAPIKey)
	return registry.NewDirectory(client, store, registry.GeneralOffice, cfg.DirectoryCacheTTL, logger, recorder)
}

// NewTransport returns the Resend transport when a key is configured and a
// logging transport otherwise. Either way sends are bounded by
// MAIL_SEND_TIMEOUT.
func NewTransport(cfg *config.Config, logger *slog.Logger) (mail.Transport, error) {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set, letters will be logged instead of sent")
		return mail.WithTimeout(mail.NewLogTransport(logger), cfg.MailSendTimeout), nil
	}
	t, err := mail.NewResendTransport(cfg.ResendAPIKey, cfg.ResendBaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	return mail.WithTimeout(t, cfg.MailSendTimeout), nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel converts a LOG_LEVEL value to slog.Level. Unknown values
// mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// RedactURL drops the password from a connection URL.
func RedactURL(raw string) string {
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

// SanitizeError renders err with any of the given connection strings
// redacted.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := RedactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
