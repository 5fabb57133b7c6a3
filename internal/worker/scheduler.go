package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Scheduler runs the refresh job on a fixed interval when no Pub/Sub
// subscription drives the worker.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *RefreshJob
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler running job every interval. Runs never
// overlap; a tick that arrives while a run is in progress is skipped.
func NewScheduler(job *RefreshJob, interval time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid refresh interval %s", interval)
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	sched := &Scheduler{
		scheduler: s,
		job:       job,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := s.Every(interval).Do(sched.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	return sched, nil
}

// Start begins scheduling. The first run starts immediately.
func (s *Scheduler) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("starting refresh scheduler")
	s.scheduler.StartAsync()
}

// Stop cancels an in-flight run and stops scheduling.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) run() {
	result := s.job.Run(s.ctx)
	if result.Failed > 0 {
		s.logger.Warn().
			Int("failed", result.Failed).
			Int("total", result.Total).
			Msg("scheduled refresh had failures")
	}
}
