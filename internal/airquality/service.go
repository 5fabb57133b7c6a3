package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/telemetry"
)

// Provider is an upstream source of air quality readings.
type Provider interface {
	// Name identifies the provider in logs, metrics and health reports.
	Name() string

	// Fetch returns the latest reading near a coordinate. It returns
	// ErrNoData (possibly wrapped) when the provider has nothing usable.
	Fetch(ctx context.Context, lat, lon float64) (*Reading, error)
}

// HealthRecorder receives per-provider call outcomes.
type HealthRecorder interface {
	RecordSuccess(name string)
	RecordFailure(name string, err error)
}

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 5 * time.Second

// ResolverConfig holds configuration for the resolver.
type ResolverConfig struct {
	// Providers are consulted in order; the first with data wins.
	Providers []Provider

	// Logger for resolver operations.
	Logger zerolog.Logger

	// Clock stamps synthetic readings (default: real clock).
	Clock clockwork.Clock

	// Rand drives synthetic jitter and the degraded AQI path (default: aqi.DefaultRand).
	Rand aqi.RandFunc

	// ProviderTimeout bounds each provider call (default: 5 seconds).
	ProviderTimeout time.Duration

	// Metrics is optional.
	Metrics *telemetry.ProviderMetrics

	// Health is optional.
	Health HealthRecorder
}

// Resolver turns a coordinate into a canonical Record. It holds only
// immutable configuration and is safe for concurrent use.
type Resolver struct {
	providers []Provider
	logger    zerolog.Logger
	clock     clockwork.Clock
	rnd       aqi.RandFunc
	timeout   time.Duration
	metrics   *telemetry.ProviderMetrics
	health    HealthRecorder
	synthetic *Generator
}

// NewResolver creates a new resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = aqi.DefaultRand
	}

	timeout := cfg.ProviderTimeout
	if timeout == 0 {
		timeout = DefaultProviderTimeout
	}

	providers := make([]Provider, len(cfg.Providers))
	copy(providers, cfg.Providers)

	return &Resolver{
		providers: providers,
		logger:    cfg.Logger,
		clock:     clock,
		rnd:       rnd,
		timeout:   timeout,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		synthetic: NewGenerator(rnd, clock),
	}
}

// Resolve returns the best available record for a coordinate. It never
// fails: provider errors fall through to the next provider and, when every
// provider comes up empty, to a synthetic reading.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) *Record {
	ctx, span := telemetry.StartSpan(ctx, "airquality.Resolve",
		attribute.Float64("geo.lat", lat),
		attribute.Float64("geo.lon", lon),
	)
	defer span.End()

	for _, p := range r.providers {
		reading, err := r.fetch(ctx, p, lat, lon)
		if err != nil {
			event := r.logger.Warn()
			if errors.Is(err, ErrNoData) {
				event = r.logger.Debug()
			}
			event.Err(err).
				Str("provider", p.Name()).
				Float64("lat", lat).
				Float64("lon", lon).
				Msg("provider returned no data, trying next source")
			continue
		}

		record := r.normalize(reading, lat, lon)
		span.SetAttributes(attribute.String("airquality.source", string(record.Source)))
		return record
	}

	r.logger.Info().
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("all providers empty, generating synthetic reading")
	r.metrics.RecordSynthetic(ctx)

	record := r.synthetic.Generate(lat, lon)
	span.SetAttributes(attribute.String("airquality.source", string(record.Source)))
	return record
}

// fetch calls a single provider, demoting panics, timeouts and empty
// readings to errors.
func (r *Resolver) fetch(ctx context.Context, p Provider, lat, lon float64) (reading *Reading, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "airquality.provider.Fetch",
		attribute.String("provider.name", p.Name()),
	)
	start := r.clock.Now()

	defer func() {
		if rec := recover(); rec != nil {
			reading, err = nil, fmt.Errorf("%w: provider panicked: %v", ErrProviderUnavailable, rec)
		}
		if err == nil && (reading == nil || (reading.Pollutants.Empty() && reading.Index == nil)) {
			reading, err = nil, ErrNoData
		}
		r.observe(ctx, p.Name(), start, err)
		telemetry.EndSpan(span, err)
	}()

	return p.Fetch(ctx, lat, lon)
}

func (r *Resolver) observe(ctx context.Context, name string, start time.Time, err error) {
	outcome := "data"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	default:
		outcome = "error"
	}
	r.metrics.RecordRequest(ctx, name, outcome, r.clock.Since(start))

	if r.health == nil {
		return
	}
	// An empty answer is still a healthy provider.
	if err == nil || errors.Is(err, ErrNoData) {
		r.health.RecordSuccess(name)
	} else {
		r.health.RecordFailure(name, err)
	}
}

// normalize builds the canonical record from a provider reading.
func (r *Resolver) normalize(reading *Reading, lat, lon float64) *Record {
	record := &Record{
		Source:       reading.Source,
		LocationName: reading.LocationName,
		City:         reading.City,
		Country:      reading.Country,
		Coordinates:  reading.Coordinates,
		Pollutants:   reading.Pollutants,
		LastUpdated:  reading.ObservedAt,
	}

	if record.Coordinates == (Coordinates{}) {
		record.Coordinates = Coordinates{Latitude: lat, Longitude: lon}
	}
	if record.LastUpdated.IsZero() {
		record.LastUpdated = r.clock.Now().UTC()
	}

	if reading.Index != nil {
		record.AQI = *reading.Index
	} else {
		record.AQI, record.AQIEstimated = aqi.FromPM25(reading.Pollutants.PM25, r.rnd)
	}

	return record
}
