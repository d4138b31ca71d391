// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Advisor settings
	AdvisorEnabled bool
	AdvisorURL     string
	AdvisorAPIKey  string
	AdvisorTimeout time.Duration
	AdvisorBudget  int // max advisor calls per minute, 0 = unlimited

	// Decision settings
	HoldingPeriod time.Duration // pending_review age before auto-approval
	TimerInterval time.Duration // how often the auto-approval timer scans

	// Trust settings
	TrustHalfLife time.Duration

	// Security
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint, tracing disabled when empty
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultRateLimit      = 100
	DefaultAdvisorTimeout = 4 * time.Second
	DefaultHoldingPeriod  = 24 * time.Hour
	DefaultTimerInterval  = time.Minute
	DefaultTrustHalfLife  = 168 * time.Hour
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AdvisorEnabled: getEnvBool("ADVISOR_ENABLED", false),
		AdvisorURL:     os.Getenv("ADVISOR_URL"),
		AdvisorAPIKey:  os.Getenv("ADVISOR_API_KEY"),
		AdvisorTimeout: getEnvDuration("ADVISOR_TIMEOUT", DefaultAdvisorTimeout),
		AdvisorBudget:  int(getEnvInt64("ADVISOR_BUDGET_PER_MINUTE", 0)),
		HoldingPeriod:  getEnvDuration("HOLDING_PERIOD", DefaultHoldingPeriod),
		TimerInterval:  getEnvDuration("TIMER_INTERVAL", DefaultTimerInterval),
		TrustHalfLife:  getEnvDuration("TRUST_HALF_LIFE", DefaultTrustHalfLife),
		RateLimitRPS:   int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.AdvisorEnabled {
		if c.AdvisorURL == "" {
			return fmt.Errorf("ADVISOR_URL is required when ADVISOR_ENABLED is set")
		}
		if _, err := url.ParseRequestURI(c.AdvisorURL); err != nil {
			return fmt.Errorf("ADVISOR_URL is not a valid URL: %w", err)
		}
	}

	if c.HoldingPeriod <= 0 {
		return fmt.Errorf("HOLDING_PERIOD must be positive")
	}
	if c.TimerInterval <= 0 {
		return fmt.Errorf("TIMER_INTERVAL must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
