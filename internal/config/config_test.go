// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr = %q, want localhost:8080", cfg.ServerAddr())
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment = false for default env")
	}
	if cfg.RetentionDays != 60 {
		t.Errorf("RetentionDays = %d, want 60", cfg.RetentionDays)
	}
	if cfg.DedupWindow() != 0 {
		t.Errorf("DedupWindow = %v, want disabled by default", cfg.DedupWindow())
	}
	if cfg.CacheTTL() != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL())
	}
	if cfg.UseRedisCache() {
		t.Error("UseRedisCache = true with no Redis URL")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EVENTLOG_SERVER_HOST", "0.0.0.0")
	t.Setenv("EVENTLOG_SERVER_PORT", "9090")
	t.Setenv("EVENTLOG_ENV", "production")
	t.Setenv("EVENTLOG_RETENTION_DAYS", "14")
	t.Setenv("EVENTLOG_DEDUP_WINDOW", "30")
	t.Setenv("EVENTLOG_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerAddr() != "0.0.0.0:9090" {
		t.Errorf("ServerAddr = %q, want 0.0.0.0:9090", cfg.ServerAddr())
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment = true for production env")
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d, want 14", cfg.RetentionDays)
	}
	if cfg.DedupWindow() != 30*time.Second {
		t.Errorf("DedupWindow = %v, want 30s", cfg.DedupWindow())
	}
	if !cfg.UseRedisCache() {
		t.Error("UseRedisCache = false with Redis URL set")
	}
}

func TestLoadMySQLRequiresDSN(t *testing.T) {
	t.Setenv("EVENTLOG_DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted mysql driver without a DSN")
	}

	t.Setenv("EVENTLOG_DB_DSN", "user:pass@tcp(localhost:3306)/eventlog?parseTime=false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DSN() != "user:pass@tcp(localhost:3306)/eventlog?parseTime=false" {
		t.Errorf("DSN = %q, want the MySQL DSN", cfg.DSN())
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("EVENTLOG_DB_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Error("Load accepted an unsupported driver")
	}
}

func TestLoadRejectsNegativeRetention(t *testing.T) {
	t.Setenv("EVENTLOG_RETENTION_DAYS", "-1")

	if _, err := Load(); err == nil {
		t.Error("Load accepted a negative retention horizon")
	}
}

func TestSQLiteDSNIsPath(t *testing.T) {
	t.Setenv("EVENTLOG_DB_PATH", "/tmp/el.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DSN() != "/tmp/el.db" {
		t.Errorf("DSN = %q, want the sqlite path", cfg.DSN())
	}
}
