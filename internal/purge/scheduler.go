// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package purge

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// purgeSchedule runs the purge once a day, during the quiet hours.
const purgeSchedule = "30 3 * * *"

// Scheduler runs the purge service on a recurring schedule.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
}

// NewScheduler creates a scheduler for the given purge service.
func NewScheduler(service *Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger,
	}
}

// Start begins the recurring purge job.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(purgeSchedule, func() {
		if _, err := s.service.Purge(context.Background()); err != nil {
			s.logger.Error("scheduled purge failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("purge scheduler started", "schedule", purgeSchedule)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("purge scheduler stopped")
}
