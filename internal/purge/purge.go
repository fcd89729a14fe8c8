// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package purge deletes events older than the configured retention horizon,
// with an extension point for per-logger or per-level retention policies.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olegiv/eventlog-go/internal/store"
)

// eventsTable is the table name handed to where filters.
const eventsTable = "events"

// WhereFilter rewrites the purge predicate. It receives the default WHERE
// clause, the horizon in days and the events table name, and returns the
// clause to use instead. Returning the input unchanged keeps the default.
type WhereFilter func(defaultWhere string, horizonDays int, tableName string) string

// CompletionFunc is notified after each purge run with the horizon and the
// exact number of event rows deleted (0 when nothing matched).
type CompletionFunc func(horizonDays int, rowsDeleted int64)

// Service purges expired events and their context rows.
type Service struct {
	store       *store.Store
	horizonDays int
	logger      *slog.Logger
	now         func() time.Time

	mu           sync.RWMutex
	whereFilters []WhereFilter
	onComplete   []CompletionFunc
}

// NewService creates a purge service. A horizon of 0 disables purging.
func NewService(st *store.Store, horizonDays int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		horizonDays: horizonDays,
		logger:      logger,
		now:         time.Now,
	}
}

// AddWhereFilter registers a retention predicate rewriter. Filters run in
// registration order, each receiving the previous filter's output.
func (s *Service) AddWhereFilter(f WhereFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whereFilters = append(s.whereFilters, f)
}

// OnComplete registers a completion callback.
func (s *Service) OnComplete(f CompletionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = append(s.onComplete, f)
}

// Purge deletes events older than the horizon along with their contexts and
// returns the number of event rows deleted. A horizon of 0 means "keep
// forever" and returns immediately without notifying.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	if s.horizonDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.horizonDays)
	where := fmt.Sprintf("date < '%s'", cutoff.Format(store.TimeFormat))

	s.mu.RLock()
	filters := make([]WhereFilter, len(s.whereFilters))
	copy(filters, s.whereFilters)
	s.mu.RUnlock()

	for _, f := range filters {
		where = f(where, s.horizonDays, eventsTable)
	}

	ids, err := s.store.SelectEventIDs(ctx, where)
	if err != nil {
		return 0, fmt.Errorf("selecting expired events: %w", err)
	}

	deleted, err := s.store.DeleteEvents(ctx, ids)
	if err != nil {
		return deleted, fmt.Errorf("deleting expired events: %w", err)
	}

	s.logger.Info("purge completed", "horizon_days", s.horizonDays, "rows_deleted", deleted)
	s.notifyComplete(deleted)
	return deleted, nil
}

// notifyComplete invokes the completion callbacks.
func (s *Service) notifyComplete(deleted int64) {
	s.mu.RLock()
	callbacks := make([]CompletionFunc, len(s.onComplete))
	copy(callbacks, s.onComplete)
	s.mu.RUnlock()

	for _, f := range callbacks {
		f(s.horizonDays, deleted)
	}
}
