// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// IP enrichment providers. Empty credentials disable the provider
	// and the pipeline degrades to device-only scoring.
	IPInfoToken       string        `env:"IPINFO_TOKEN" envDefault:""`
	AbuseIPDBKey      string        `env:"ABUSEIPDB_KEY" envDefault:""`
	ReputationTimeout time.Duration `env:"REPUTATION_TIMEOUT" envDefault:"2s"`

	// Threat intel list files, one entry per line.
	TorExitNodesPath      string `env:"TOR_EXIT_NODES_PATH" envDefault:""`
	ProxyListPath         string `env:"PROXY_LIST_PATH" envDefault:""`
	DisposableDomainsPath string `env:"DISPOSABLE_DOMAINS_PATH" envDefault:""`

	// Velocity window for burst detection
	VelocityWindow time.Duration `env:"VELOCITY_WINDOW" envDefault:"60m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitIngestEnabled bool `env:"RATE_LIMIT_INGEST_ENABLED" envDefault:"true"`

	// Prometheus /metrics endpoint
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
