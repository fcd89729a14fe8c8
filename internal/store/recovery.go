package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// tableMissingPhrases are the driver error fragments that indicate a
// required table has disappeared. Matched case-insensitively.
var tableMissingPhrases = []string{
	"doesn't exist",
	"does not exist",
	"no such table",
}

// IsTableMissing reports whether err looks like a missing-table error from
// either supported driver.
func IsTableMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range tableMissingPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// Recovery recreates the schema when the event tables have gone missing,
// for example after a site duplication that copied the data directory
// without them. Recreation runs at most once per process; a second missing
// table in the same process surfaces to the caller.
type Recovery struct {
	db     *sql.DB
	driver string
	logger *slog.Logger

	mu        sync.Mutex
	attempted bool
}

// NewRecovery creates a Recovery for the given database handle.
func NewRecovery(db *sql.DB, driver string, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{db: db, driver: driver, logger: logger}
}

// RecreateTablesIfMissing inspects err and, if it indicates a missing table,
// recreates the schema. Returns true when recreation happened and the
// triggering operation should be retried once.
func (r *Recovery) RecreateTablesIfMissing(ctx context.Context, err error) bool {
	if !IsTableMissing(err) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempted {
		return false
	}
	r.attempted = true

	r.logger.Warn("event tables missing, recreating schema", "error", err)

	if createErr := EnsureTables(ctx, r.db, r.driver); createErr != nil {
		r.logger.Error("failed to recreate event tables", "error", createErr)
		return false
	}

	r.logger.Info("event tables recreated")
	return true
}

// EnsureTables creates the events and contexts tables if they do not exist.
// Idempotent; used by Recovery and by tests that bypass goose.
func EnsureTables(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range ensureStatements(driver) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// ensureStatements returns idempotent DDL for the given driver.
func ensureStatements(driver string) []string {
	if driver == DriverMySQL {
		return []string{
			`CREATE TABLE IF NOT EXISTS events (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				date DATETIME NOT NULL,
				logger VARCHAR(30) NOT NULL DEFAULT '',
				level VARCHAR(20) NOT NULL DEFAULT 'info',
				message TEXT NOT NULL,
				occasions_id VARCHAR(64) NOT NULL DEFAULT '',
				initiator VARCHAR(16) NOT NULL DEFAULT 'other',
				PRIMARY KEY (id),
				KEY idx_events_date (date, id),
				KEY idx_events_logger (logger),
				KEY idx_events_occasions (occasions_id)
			)`,
			`CREATE TABLE IF NOT EXISTS contexts (
				context_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				history_id BIGINT UNSIGNED NOT NULL,
				` + "`key`" + ` VARCHAR(200) NOT NULL,
				value TEXT NOT NULL,
				PRIMARY KEY (context_id),
				KEY idx_contexts_history (history_id),
				KEY idx_contexts_key (` + "`key`" + `, value(100))
			)`,
		}
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME NOT NULL,
			logger TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT 'info',
			message TEXT NOT NULL,
			occasions_id TEXT NOT NULL DEFAULT '',
			initiator TEXT NOT NULL DEFAULT 'other'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON events(date, id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_logger ON events(logger)`,
		`CREATE INDEX IF NOT EXISTS idx_events_occasions ON events(occasions_id)`,
		`CREATE TABLE IF NOT EXISTS contexts (
			context_id INTEGER PRIMARY KEY AUTOINCREMENT,
			history_id INTEGER NOT NULL,
			` + "`key`" + ` TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contexts_history ON contexts(history_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contexts_key ON contexts(` + "`key`" + `, value)`,
	}
}
