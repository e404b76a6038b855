package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backends for the live transport and the draft store.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	LiveTransport string
	DraftBackend  string
	JWTSecret     string
	JWTTTL        time.Duration
	EmitRateLimit int
	LogLevel      slog.Level
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		LiveTransport: strings.ToLower(getEnv("LIVE_TRANSPORT", BackendRedis)),
		DraftBackend:  strings.ToLower(getEnv("DRAFT_BACKEND", BackendRedis)),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTTTL:        time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		EmitRateLimit: getEnvInt("EMIT_RATE_LIMIT", 20),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	switch cfg.LiveTransport {
	case BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("LIVE_TRANSPORT must be redis or memory, got %q", cfg.LiveTransport)
	}
	switch cfg.DraftBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("DRAFT_BACKEND must be redis, postgres or memory, got %q", cfg.DraftBackend)
	}

	if cfg.NeedsRedis() && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.DraftBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmitRateLimit < 0 {
		return nil, fmt.Errorf("EMIT_RATE_LIMIT must not be negative")
	}

	return cfg, nil
}

// NeedsRedis reports whether any configured component talks to Redis.
// The emit rate limiter lives in Redis too.
func (c *Config) NeedsRedis() bool {
	return c.LiveTransport == BackendRedis || c.DraftBackend == BackendRedis
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
