/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/reelforge/backend/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.CycleResetSchedule, s.jobs.ResetCreditCycles); err != nil {
		s.logger.Error("failed to schedule credit cycle reset job", "error", err)
	} else {
		s.logger.Info("scheduled credit cycle reset job", "schedule", s.config.CycleResetSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.LapseCheckSchedule, s.jobs.DeactivateLapsed); err != nil {
		s.logger.Error("failed to schedule lapse check job", "error", err)
	} else {
		s.logger.Info("scheduled lapse check job", "schedule", s.config.LapseCheckSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
