// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver   string `env:"EVENTLOG_DB_DRIVER" envDefault:"sqlite"`
	DBPath     string `env:"EVENTLOG_DB_PATH" envDefault:"./data/eventlog.db"`
	DBDSN      string `env:"EVENTLOG_DB_DSN"` // MySQL DSN, required when EVENTLOG_DB_DRIVER=mysql
	ServerHost string `env:"EVENTLOG_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"EVENTLOG_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"EVENTLOG_ENV" envDefault:"development"`
	LogLevel   string `env:"EVENTLOG_LOG_LEVEL" envDefault:"info"`

	// Retention configuration
	RetentionDays  int `env:"EVENTLOG_RETENTION_DAYS" envDefault:"60"` // 0 = keep forever
	DedupWindowSec int `env:"EVENTLOG_DEDUP_WINDOW" envDefault:"0"`    // repeat fast path window in seconds, 0 = off

	// Cache configuration
	RedisURL     string `env:"EVENTLOG_REDIS_URL"`                          // Optional Redis URL for a shared query cache
	CachePrefix  string `env:"EVENTLOG_CACHE_PREFIX" envDefault:"eventlog:"` // Redis key prefix
	CacheTTLSec  int    `env:"EVENTLOG_CACHE_TTL" envDefault:"30"`           // Query cache TTL in seconds
	CacheMaxSize int    `env:"EVENTLOG_CACHE_MAX_SIZE" envDefault:"10000"`   // Max memory cache entries

	// API configuration
	APIToken       string  `env:"EVENTLOG_API_TOKEN"` // Bearer token required for event ingest
	RateLimitRPS   float64 `env:"EVENTLOG_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"EVENTLOG_RATE_LIMIT_BURST" envDefault:"20"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// DSN returns the driver-appropriate data source name.
func (c Config) DSN() string {
	if c.DBDriver == "mysql" {
		return c.DBDSN
	}
	return c.DBPath
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// DedupWindow returns the repeat fast path window as a duration.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSec) * time.Second
}

// CacheTTL returns the query cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "mysql":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("EVENTLOG_DB_DSN is required when EVENTLOG_DB_DRIVER=mysql")
		}
	default:
		return nil, fmt.Errorf("unsupported EVENTLOG_DB_DRIVER %q (use sqlite or mysql)", cfg.DBDriver)
	}

	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("EVENTLOG_RETENTION_DAYS must not be negative, got %d", cfg.RetentionDays)
	}

	return cfg, nil
}
