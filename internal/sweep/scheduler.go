// Package sweep runs scheduled maintenance: retention cleanup of terminal
// alerts on a cron cadence.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Cleaner is the maintenance operation the scheduler drives.
type Cleaner interface {
	CleanupOldAlerts(ctx context.Context, retentionDays int) (int, error)
}

// Config holds the sweep cadence and retention window.
type Config struct {
	// Schedule is a standard cron expression, e.g. "0 3 * * *" for daily at
	// 3 AM. Empty disables the scheduler.
	Schedule string
	// RetentionDays is how long terminal alerts are kept.
	RetentionDays int
}

// Scheduler runs the retention cleanup on a cron schedule.
type Scheduler struct {
	cleaner Cleaner
	config  Config
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a sweep scheduler.
func NewScheduler(cleaner Cleaner, config Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cleaner: cleaner,
		config:  config,
		cron:    cron.New(),
		logger:  logger.With("component", "sweep"),
	}
}

// Start begins scheduled cleanup. An empty schedule disables the sweep
// without error. The scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}
	if s.config.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", s.config.RetentionDays)
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runCleanup(ctx)
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started",
		"schedule", s.config.Schedule,
		"retention_days", s.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runCleanup executes one cleanup cycle.
func (s *Scheduler) runCleanup(ctx context.Context) {
	deleted, err := s.cleaner.CleanupOldAlerts(ctx, s.config.RetentionDays)
	if err != nil {
		s.logger.Error("scheduled cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("scheduled cleanup completed", "deleted", deleted)
	} else {
		s.logger.Debug("scheduled cleanup completed, nothing to delete")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
