// Package config provides configuration management for the tenantgate service.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration so the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Storage Configuration:
//   - STORAGE_TYPE: Storage backend - "memory", "sqlite" or "postgres" (default: memory)
//   - SQLITE_PATH: SQLite database file path (default: ./tenantgate.db)
//   - POSTGRES_URL: PostgreSQL connection string (required for postgres backend)
//
// Redis Configuration (distributed rate limiting and webhook ledger):
//   - REDIS_ENABLED: Use Redis-backed stores (default: false)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: Session token signing secret (required, minimum 32 characters)
//   - SYSTEM_API_KEY: System-wide API key shared secret (optional)
//   - STRIPE_WEBHOOK_SECRET: Signing secret for the billing provider
//   - GITHUB_WEBHOOK_SECRET: Signing secret for the source-control provider
//   - WEBHOOK_SIGNATURE_TOLERANCE: Max age of timestamped signatures (default: 5m, 0 disables)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT_MAX / RATE_LIMIT_DEFAULT_WINDOW: default class (default: 200 / 1m)
//   - RATE_LIMIT_AUTH_MAX / RATE_LIMIT_AUTH_WINDOW: auth endpoints (default: 10 / 1m)
//   - RATE_LIMIT_WEBHOOK_MAX / RATE_LIMIT_WEBHOOK_WINDOW: webhook ingestion (default: 600 / 1m)
//   - RATE_LIMIT_BULK_MAX / RATE_LIMIT_BULK_WINDOW: bulk creation (default: 20 / 1m)
//   - RATE_LIMIT_RETENTION: how long idle keys are kept before the reaper drops them (default: 24h)
//   - INGRESS_RPS / INGRESS_BURST: process-wide flood limiter (default: 500 / 1000)
//
// Tenant Resolution:
//   - TENANT_BYPASS_PREFIXES: comma-separated path prefixes that skip tenant
//     resolution (default: /health,/docs,/api/auth/register,/api/auth/login,/webhooks)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitClass holds the window and ceiling for one request class.
type RateLimitClass struct {
	Max    int
	Window time.Duration
}

// Config holds all configuration values for the tenantgate service.
type Config struct {
	// Application settings
	Port     string
	LogLevel string

	// Storage configuration
	StorageType string // "memory", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// Redis configuration
	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Security configuration
	JWTSecret                 string
	SystemAPIKey              string
	StripeWebhookSecret       string
	GitHubWebhookSecret       string
	WebhookSignatureTolerance time.Duration

	// Rate limiting configuration
	RateLimitEnabled   bool
	RateLimitDefault   RateLimitClass
	RateLimitAuth      RateLimitClass
	RateLimitWebhook   RateLimitClass
	RateLimitBulk      RateLimitClass
	RateLimitRetention time.Duration
	IngressRPS         int
	IngressBurst       int

	// Tenant resolution
	BypassPrefixes []string
}

// Load creates a new Config instance with values loaded from environment
// variables. Call Validate() on the returned Config before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StorageType: getEnv("STORAGE_TYPE", "memory"),
		SQLitePath:  getEnv("SQLITE_PATH", "./tenantgate.db"),
		PostgresURL: getEnv("POSTGRES_URL", ""),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),

		JWTSecret:                 getEnv("JWT_SECRET", ""),
		SystemAPIKey:              getEnv("SYSTEM_API_KEY", ""),
		StripeWebhookSecret:       getEnv("STRIPE_WEBHOOK_SECRET", ""),
		GitHubWebhookSecret:       getEnv("GITHUB_WEBHOOK_SECRET", ""),
		WebhookSignatureTolerance: getDurationEnv("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: RateLimitClass{
			Max:    getIntEnv("RATE_LIMIT_DEFAULT_MAX", 200),
			Window: getDurationEnv("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		},
		RateLimitAuth: RateLimitClass{
			Max:    getIntEnv("RATE_LIMIT_AUTH_MAX", 10),
			Window: getDurationEnv("RATE_LIMIT_AUTH_WINDOW", time.Minute),
		},
		RateLimitWebhook: RateLimitClass{
			Max:    getIntEnv("RATE_LIMIT_WEBHOOK_MAX", 600),
			Window: getDurationEnv("RATE_LIMIT_WEBHOOK_WINDOW", time.Minute),
		},
		RateLimitBulk: RateLimitClass{
			Max:    getIntEnv("RATE_LIMIT_BULK_MAX", 20),
			Window: getDurationEnv("RATE_LIMIT_BULK_WINDOW", time.Minute),
		},
		RateLimitRetention: getDurationEnv("RATE_LIMIT_RETENTION", 24*time.Hour),
		IngressRPS:         getIntEnv("INGRESS_RPS", 500),
		IngressBurst:       getIntEnv("INGRESS_BURST", 1000),

		BypassPrefixes: getListEnv("TENANT_BYPASS_PREFIXES",
			[]string{"/health", "/docs", "/api/auth/register", "/api/auth/login", "/webhooks"}),
	}
}

// Validate ensures the configuration is complete enough to start the service.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}

	switch c.StorageType {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORAGE_TYPE is postgres")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE: %s", c.StorageType)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}

	if c.RedisEnabled && c.RedisAddress == "" {
		return fmt.Errorf("REDIS_ADDRESS is required when REDIS_ENABLED is true")
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.RedisDB)
	}

	for name, class := range map[string]RateLimitClass{
		"default": c.RateLimitDefault,
		"auth":    c.RateLimitAuth,
		"webhook": c.RateLimitWebhook,
		"bulk":    c.RateLimitBulk,
	} {
		if class.Max <= 0 {
			return fmt.Errorf("rate limit class %s: max must be positive", name)
		}
		if class.Window <= 0 {
			return fmt.Errorf("rate limit class %s: window must be positive", name)
		}
	}

	if c.WebhookSignatureTolerance < 0 {
		return fmt.Errorf("WEBHOOK_SIGNATURE_TOLERANCE must not be negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
