package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/store"
)

// Refresher warms one coordinate.
type Refresher interface {
	Refresh(ctx context.Context, lat, lon float64) (*forecast.Forecast, error)
}

// LocationLister supplies stored locations to refresh alongside the targets.
type LocationLister interface {
	Locations(ctx context.Context) ([]*store.Location, error)
}

// RefreshJob refreshes every target with a bounded worker pool.
type RefreshJob struct {
	config    RefreshConfig
	refresher Refresher
	locations LocationLister
	logger    zerolog.Logger
	clock     clockwork.Clock

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns  int64
	Successful int64
	Failed     int64

	// Fallbacks counts forecasts that used the fallback estimate.
	Fallbacks int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Refresher Refresher

	// Locations is optional.
	Locations LocationLister

	Logger zerolog.Logger
	Clock  clockwork.Clock
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	defaults := DefaultRefreshConfig()
	if len(config.Targets) == 0 {
		config.Targets = defaults.Targets
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RefreshJob{
		config:    config,
		refresher: cfg.Refresher,
		locations: cfg.Locations,
		logger:    cfg.Logger,
		clock:     clock,
		metrics:   &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Fallbacks  int
	Errors     []RefreshError
}

// RefreshError records a failed target.
type RefreshError struct {
	Target Target
	Error  string
}

// Run refreshes the configured targets plus any stored locations.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.RunTargets(ctx, j.targets(ctx))
}

// RunTargets refreshes exactly the given targets. A target counts as failed
// when its refresh reports an error, including persistence or publication.
func (j *RefreshJob) RunTargets(ctx context.Context, targets []Target) *RefreshResult {
	start := j.clock.Now()
	result := &RefreshResult{
		StartTime: start,
		Total:     len(targets),
	}

	j.logger.Info().
		Int("total_targets", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting forecast refresh")

	targetsChan := make(chan Target, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for range min(j.config.Concurrency, max(len(targets), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		switch {
		case tr.err != nil:
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{Target: tr.target, Error: tr.err.Error()})
		default:
			result.Successful++
		}
		if tr.fallback {
			result.Fallbacks++
		}
	}

	// Targets never picked up because ctx ended count as failed.
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(start)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("fallbacks", result.Fallbacks).
		Msg("forecast refresh completed")

	return result
}

func (j *RefreshJob) targets(ctx context.Context) []Target {
	if j.locations == nil {
		return j.config.Targets
	}

	locations, err := j.locations.Locations(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("listing stored locations failed, refreshing configured targets only")
		return j.config.Targets
	}
	return mergeTargets(j.config.Targets, locations)
}

type targetResult struct {
	target   Target
	fallback bool
	err      error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, targets <-chan Target, results chan<- targetResult) {
	for target := range targets {
		if ctx.Err() != nil {
			return
		}
		results <- j.refreshTarget(ctx, target)
	}
}

func (j *RefreshJob) refreshTarget(ctx context.Context, target Target) targetResult {
	targetCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	fc, err := j.refresher.Refresh(targetCtx, target.Latitude, target.Longitude)
	tr := targetResult{target: target, err: err}
	if fc != nil && fc.Result != nil {
		tr.fallback = fc.UsedFallback
	}

	if err != nil {
		j.logger.Warn().
			Err(err).
			Str("target", target.Name).
			Float64("lat", target.Latitude).
			Float64("lon", target.Longitude).
			Msg("target refresh failed")
	}
	return tr
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Successful += int64(result.Successful)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.Fallbacks += int64(result.Fallbacks)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Successful:      j.metrics.Successful,
		Failed:          j.metrics.Failed,
		Fallbacks:       j.metrics.Fallbacks,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
	}
}
