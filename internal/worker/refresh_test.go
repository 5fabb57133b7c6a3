package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/geo"
	"github.com/aqforecast/aqforecast/internal/prediction"
	"github.com/aqforecast/aqforecast/internal/store"
	"github.com/aqforecast/aqforecast/internal/worker"
)

// fakeRefresher records calls and fails for coordinates in failAt.
type fakeRefresher struct {
	mu       sync.Mutex
	calls    []worker.Target
	failAt   map[float64]bool
	fallback bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (f *fakeRefresher) Refresh(_ context.Context, lat, lon float64) (*forecast.Forecast, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, worker.Target{Latitude: lat, Longitude: lon})
	f.mu.Unlock()

	fc := &forecast.Forecast{Result: &prediction.Result{PredictedAQI: 50, UsedFallback: f.fallback}}
	if f.failAt[lat] {
		return fc, errors.New("store prediction: connection refused")
	}
	return fc, nil
}

type fakeLister struct {
	locations []*store.Location
	err       error
}

func (f fakeLister) Locations(context.Context) ([]*store.Location, error) {
	return f.locations, f.err
}

func targets(lats ...float64) []worker.Target {
	out := make([]worker.Target, 0, len(lats))
	for _, lat := range lats {
		out = append(out, worker.Target{Latitude: lat, Longitude: lat})
	}
	return out
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Len(t, cfg.Targets, len(geo.KnownCities()))
}

func TestDefaultTargets_MatchKnownCities(t *testing.T) {
	for i, c := range geo.KnownCities() {
		target := worker.DefaultTargets()[i]
		assert.Equal(t, c.Name, target.Name)
		assert.Equal(t, c.Latitude, target.Latitude)
		assert.Equal(t, c.Longitude, target.Longitude)
	}
}

func TestRefreshJob_Run(t *testing.T) {
	refresher := &fakeRefresher{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(1, 2, 3, 4, 5), Concurrency: 2},
		Refresher: refresher,
		Logger:    zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
	assert.Len(t, refresher.calls, 5)
}

func TestRefreshJob_BoundedConcurrency(t *testing.T) {
	refresher := &fakeRefresher{delay: 20 * time.Millisecond}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(1, 2, 3, 4, 5, 6, 7, 8), Concurrency: 3},
		Refresher: refresher,
		Logger:    zerolog.Nop(),
	})

	job.Run(context.Background())

	assert.LessOrEqual(t, refresher.maxInFlight.Load(), int32(3))
	assert.Len(t, refresher.calls, 8)
}

func TestRefreshJob_CountsFailuresAndFallbacks(t *testing.T) {
	refresher := &fakeRefresher{failAt: map[float64]bool{2: true}, fallback: true}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(1, 2, 3), Concurrency: 1},
		Refresher: refresher,
		Logger:    zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Fallbacks)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2.0, result.Errors[0].Target.Latitude)
	assert.Contains(t, result.Errors[0].Error, "connection refused")
}

func TestRefreshJob_MergesStoredLocations(t *testing.T) {
	refresher := &fakeRefresher{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(10), Concurrency: 1},
		Refresher: refresher,
		Locations: fakeLister{locations: []*store.Location{
			{Name: "Duplicate", Latitude: 10.001, Longitude: 10.001},
			{Name: "Office", Latitude: 20, Longitude: 20},
		}},
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.Total)
	require.Len(t, refresher.calls, 2)
}

func TestRefreshJob_ListingErrorKeepsTargets(t *testing.T) {
	refresher := &fakeRefresher{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(10, 11), Concurrency: 1},
		Refresher: refresher,
		Locations: fakeLister{err: errors.New("db down")},
		Logger:    zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.Successful)
}

func TestRefreshJob_CancelledContext(t *testing.T) {
	refresher := &fakeRefresher{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(1, 2, 3), Concurrency: 2},
		Refresher: refresher,
		Logger:    zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := job.Run(ctx)

	assert.Equal(t, 3, result.Failed)
	assert.Empty(t, refresher.calls)
}

func TestRefreshJob_GetMetrics(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    worker.RefreshConfig{Targets: targets(1, 2)},
		Refresher: &fakeRefresher{failAt: map[float64]bool{1: true}},
		Logger:    zerolog.Nop(),
	})

	job.Run(context.Background())
	job.Run(context.Background())

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRuns)
	assert.Equal(t, int64(2), m.Successful)
	assert.Equal(t, int64(2), m.Failed)
	assert.False(t, m.LastRunAt.IsZero())
}
