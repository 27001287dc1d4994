// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Registry sources.
const (
	RegistryStatic    = "static"
	RegistryDirectory = "directory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitIPEnabled  bool `env:"RATE_LIMIT_IP_ENABLED" envDefault:"true"`
	RateLimitIPRPS      int  `env:"RATE_LIMIT_IP_RPS" envDefault:"20"`
	RateLimitIPBurst    int  `env:"RATE_LIMIT_IP_BURST" envDefault:"40"`

	// Comma-separated list of allowed origins; "*.example.org" matches subdomains.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Identity service tokens. Empty disables bearer JWT auth.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// Outbound mail. Without RESEND_API_KEY letters are only logged.
	FromEmail       string        `env:"FROM_EMAIL" envDefault:"RequestPing <requests@requestping.org>"`
	ResendAPIKey    string        `env:"RESEND_API_KEY" envDefault:""`
	ResendBaseURL   string        `env:"RESEND_BASE_URL" envDefault:""`
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"15s"`

	// Office registry
	RegistrySource    string        `env:"REGISTRY_SOURCE" envDefault:"static"`
	FOIAAPIKey        string        `env:"FOIA_API_KEY" envDefault:""`
	FOIAAPIURL        string        `env:"FOIA_API_URL" envDefault:"https://api.foia.gov/api"`
	DirectoryCacheTTL time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"6h"`

	// Quota
	DefaultMonthlyRequestLimit int `env:"DEFAULT_MONTHLY_REQUEST_LIMIT" envDefault:"5"`

	// Resubmission sweeper
	ResubmitEnabled     bool          `env:"RESUBMIT_ENABLED" envDefault:"true"`
	ResubmitInterval    time.Duration `env:"RESUBMIT_INTERVAL" envDefault:"30s"`
	ResubmitBatchSize   int           `env:"RESUBMIT_BATCH_SIZE" envDefault:"20"`
	ResubmitMaxAttempts int           `env:"RESUBMIT_MAX_ATTEMPTS" envDefault:"5"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesDirectoryRegistry reports whether offices come from the FOIA.gov
// directory rather than the compiled-in table.
func (c *Config) UsesDirectoryRegistry() bool {
	return c.RegistrySource == RegistryDirectory
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	var result []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.RegistrySource {
	case RegistryStatic:
	case RegistryDirectory:
		if c.FOIAAPIKey == "" {
			return errors.New("FOIA_API_KEY is required when REGISTRY_SOURCE=directory")
		}
	default:
		return fmt.Errorf("REGISTRY_SOURCE must be %q or %q, got %q", RegistryStatic, RegistryDirectory, c.RegistrySource)
	}
	if c.DefaultMonthlyRequestLimit < 0 {
		return errors.New("DEFAULT_MONTHLY_REQUEST_LIMIT must not be negative")
	}
	if c.IsProduction() && c.ResendAPIKey == "" {
		return errors.New("RESEND_API_KEY is required in production")
	}
	return nil
}

// Load reads an optional .env file, parses environment variables, and
// validates the result. Variables already set in the environment win over
// the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
