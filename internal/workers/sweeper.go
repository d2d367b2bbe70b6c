package workers

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule is used when BACKFILL_SCHEDULE is empty
const DefaultSweepSchedule = "@every 30m"

// SweepEnqueuer publishes backfill sweep jobs
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context) (string, error)
}

// Sweeper periodically schedules a backfill sweep. The sweep itself runs in
// whichever worker picks the job up.
type Sweeper struct {
	jobs   SweepEnqueuer
	logger *zap.Logger
	cron   *cron.Cron
}

// NewSweeper creates a sweeper
func NewSweeper(jobs SweepEnqueuer, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Sweeper{
		jobs:   jobs,
		logger: logger,
		cron:   cron.New(cron.WithParser(parser)),
	}
}

// ScheduleSweep enqueues one backfill sweep job
func (s *Sweeper) ScheduleSweep(ctx context.Context) error {
	id, err := s.jobs.EnqueueSweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to schedule backfill sweep: %w", err)
	}
	s.logger.Info("backfill_sweep_scheduled", zap.String("job_id", id))
	return nil
}

// Start registers the schedule and starts the cron runner. Ticks stop when
// ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.ScheduleSweep(ctx); err != nil {
			s.logger.Warn("backfill_sweep_schedule_failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("backfill_sweeper_started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the cron runner and waits for a running tick to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
