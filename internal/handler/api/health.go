// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/olegiv/eventlog-go/internal/version"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	db        *sql.DB
	version   version.Info
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sql.DB, ver version.Info) *HealthHandler {
	return &HealthHandler{
		db:        db,
		version:   ver,
		startTime: time.Now(),
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo contains system-level information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`
	NumCPU       int    `json:"num_cpus"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version.Version,
		Checks:    map[string]Check{},
	}

	dbCheck := h.checkDatabase(r)
	status.Checks["database"] = dbCheck
	if dbCheck.Status != "ok" {
		status.Status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	status.System = &SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     fmt.Sprintf("%.1f MiB", float64(m.Alloc)/1024/1024),
		MemSys:       fmt.Sprintf("%.1f MiB", float64(m.Sys)/1024/1024),
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// checkDatabase pings the database and reports latency.
func (h *HealthHandler) checkDatabase(r *http.Request) Check {
	start := time.Now()
	if err := h.db.PingContext(r.Context()); err != nil {
		return Check{Status: "error", Message: err.Error()}
	}
	return Check{
		Status:  "ok",
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
}
