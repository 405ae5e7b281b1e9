// Package config provides configuration management for Stash.
// It loads settings from environment variables with the STASH_ prefix and
// provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Stash application.
type Config struct {
	// Mode is the deployment mode: local, dev, production (default: local).
	Mode string

	Server    ServerConfig
	Redis     RedisConfig
	Directory DirectoryConfig
	Limits    LimitsConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string // Server host (default: 127.0.0.1)
	Port int    // Server port (default: 8080); 0 picks a free port
}

// RedisConfig contains backing-store configuration.
type RedisConfig struct {
	URL          string        // Redis connection URL (default: redis://localhost:6379)
	DialTimeout  time.Duration // Connection timeout (default: 5s)
	ReadTimeout  time.Duration // Read timeout (default: 5s)
	WriteTimeout time.Duration // Write timeout (default: 5s)
}

// DirectoryConfig contains credential-directory configuration.
type DirectoryConfig struct {
	Driver string // Directory engine: sqlite, postgres (default: sqlite)
	DSN    string // Connection string or file path (default: ./data/users.db)
}

// LimitsConfig contains boundary-level request limits. Tier-aware limits
// live in the tier package; these apply before authentication.
type LimitsConfig struct {
	MaxBodyBytes  int64 // Flat pre-auth request body ceiling (default: 1 MiB)
	MaxRequestTTL int64 // Largest TTL or extension acceptable in a request, seconds (default: 86400)
}

// RateLimitConfig contains per-user rate limiting settings.
type RateLimitConfig struct {
	Enabled         bool // Enforce per-user rate limits (default: false)
	MaxTrackedUsers int  // Bound on concurrently tracked users (default: 10000)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string // Log level: debug, info, warn, error (default: info)
	Format string // Log format: json or console (default: json)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the STASH_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Mode: getEnv("STASH_MODE", "local"),
		Server: ServerConfig{
			Host: getEnv("STASH_HOST", "127.0.0.1"),
			Port: getEnvInt("STASH_PORT", 8080),
		},
		Redis: RedisConfig{
			URL:          getEnv("STASH_REDIS_URL", "redis://localhost:6379"),
			DialTimeout:  getEnvDuration("STASH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("STASH_REDIS_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getEnvDuration("STASH_REDIS_WRITE_TIMEOUT", 5*time.Second),
		},
		Directory: DirectoryConfig{
			Driver: getEnv("STASH_DIRECTORY_DRIVER", "sqlite"),
			DSN:    getEnv("STASH_DIRECTORY_DSN", "./data/users.db"),
		},
		Limits: LimitsConfig{
			MaxBodyBytes:  getEnvInt64("STASH_MAX_BODY_BYTES", 1_048_576),
			MaxRequestTTL: getEnvInt64("STASH_MAX_REQUEST_TTL", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("STASH_RATE_LIMIT_ENABLED", false),
			MaxTrackedUsers: getEnvInt("STASH_RATE_LIMIT_MAX_USERS", 10000),
		},
		Log: LogConfig{
			Level:  getEnv("STASH_LOG_LEVEL", "info"),
			Format: getEnv("STASH_LOG_FORMAT", "json"),
		},
	}

	switch cfg.Directory.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("config: unknown directory driver %q (want sqlite or postgres)", cfg.Directory.Driver)
	}

	return cfg, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves a 64-bit integer environment variable or returns a
// default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "5s",
// "250ms") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
