package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// Runner runs one sync pass.
type Runner interface {
	Run(ctx context.Context, manual bool) (*models.SyncSummary, error)
}

// Scheduler runs the calendar sync pass on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	entryID cron.EntryID
	running bool
}

// NewScheduler creates a scheduler for the given cron spec, which may use
// descriptors such as "@every 15m". Each pass is bounded by timeout when
// it is positive.
func NewScheduler(runner Runner, schedule string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("scheduling calendar sync %q: %w", s.schedule, err)
	}

	s.entryID = id
	s.running = true
	s.cron.Start()
	s.logger.Info("calendar sync scheduler started", "schedule", s.schedule)

	return nil
}

// Stop waits for a running pass to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("calendar sync scheduler stopped")
}

// NextRun returns when the next scheduled pass fires, or nil when the
// scheduler is not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next.UTC()
	return &next
}

func (s *Scheduler) runScheduled() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.runner.Run(ctx, false); err != nil {
		s.logger.Error("scheduled calendar sync failed", "error", err)
	}
}
