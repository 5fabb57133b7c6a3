// Package forecast ties together resolution, inference, persistence and
// event publication for a single coordinate.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/events"
	"github.com/aqforecast/aqforecast/internal/prediction"
	"github.com/aqforecast/aqforecast/internal/store"
	"github.com/aqforecast/aqforecast/internal/telemetry"
)

// ErrStorageDisabled is returned by location operations when no repository
// is configured.
var ErrStorageDisabled = errors.New("storage is not configured")

// DateLayout formats prediction dates.
const DateLayout = "2006-01-02"

// unknownLocationName labels locations whose record carries no city.
const unknownLocationName = "Unknown Location"

// Resolver produces the canonical record for a coordinate.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) *airquality.Record
}

// Forecaster produces a next-day forecast from a record.
type Forecaster interface {
	Predict(ctx context.Context, rec *airquality.Record) *prediction.Result
}

// CurrentConditions is a resolved record annotated with its category and
// the location it was stored under.
type CurrentConditions struct {
	*airquality.Record
	aqi.Category
	LocationID string `json:"locationId,omitempty"`
}

// Forecast is a prediction result for tomorrow.
type Forecast struct {
	*prediction.Result
	LocationID     string `json:"locationId,omitempty"`
	PredictionDate string `json:"predictionDate"`
}

// ServiceConfig holds configuration for the forecast service.
type ServiceConfig struct {
	Resolver   Resolver
	Forecaster Forecaster

	// Repository is optional; without it nothing is persisted.
	Repository store.Repository

	// Publisher is optional (default: events.NopPublisher).
	Publisher events.Publisher

	Logger zerolog.Logger

	// Clock decides "today" and "tomorrow" (default: real clock).
	Clock clockwork.Clock
}

// Service orchestrates requests. Persistence and publication are best
// effort on the request path.
type Service struct {
	resolver   Resolver
	forecaster Forecaster
	repo       store.Repository
	publisher  events.Publisher
	logger     zerolog.Logger
	clock      clockwork.Clock
}

// NewService creates a new forecast service.
func NewService(cfg ServiceConfig) *Service {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		resolver:   cfg.Resolver,
		forecaster: cfg.Forecaster,
		repo:       cfg.Repository,
		publisher:  publisher,
		logger:     cfg.Logger,
		clock:      clock,
	}
}

// Current resolves the record for lat/lon, stores it as today's observation
// and annotates it with its category.
func (s *Service) Current(ctx context.Context, lat, lon float64) *CurrentConditions {
	current, err := s.current(ctx, lat, lon)
	s.logPersistence(err, lat, lon, "current conditions")
	return current
}

func (s *Service) current(ctx context.Context, lat, lon float64) (*CurrentConditions, error) {
	ctx, span := telemetry.StartSpan(ctx, "forecast.Current", coordAttrs(lat, lon)...)

	rec := s.resolver.Resolve(ctx, lat, lon)
	current := &CurrentConditions{
		Record:   rec,
		Category: aqi.Categorize(rec.AQI),
	}

	var errs []error
	loc, err := s.ensureLocation(ctx, lat, lon, rec)
	if err != nil {
		errs = append(errs, err)
	}

	if loc != nil {
		current.LocationID = loc.ID
		obs := store.ObservationFromRecord(loc.ID, rec, s.clock.Now())
		if err := s.repo.UpsertObservation(ctx, &obs); err != nil {
			errs = append(errs, fmt.Errorf("store observation: %w", err))
		}
	}

	err = errors.Join(errs...)
	telemetry.EndSpan(span, err)
	return current, err
}

// Predict forecasts tomorrow's AQI for lat/lon. When current is nil the
// record is resolved first.
func (s *Service) Predict(ctx context.Context, lat, lon float64, current *airquality.Record) *Forecast {
	forecast, err := s.predict(ctx, lat, lon, current)
	s.logPersistence(err, lat, lon, "forecast")
	return forecast
}

func (s *Service) predict(ctx context.Context, lat, lon float64, current *airquality.Record) (*Forecast, error) {
	ctx, span := telemetry.StartSpan(ctx, "forecast.Predict", coordAttrs(lat, lon)...)

	if current == nil {
		current = s.resolver.Resolve(ctx, lat, lon)
	}
	if current.Coordinates == (airquality.Coordinates{}) {
		current.Coordinates = airquality.Coordinates{Latitude: lat, Longitude: lon}
	}

	result := s.forecaster.Predict(ctx, current)
	tomorrow := store.Day(s.clock.Now()).AddDate(0, 0, 1)

	forecast := &Forecast{
		Result:         result,
		PredictionDate: tomorrow.Format(DateLayout),
	}

	var errs []error
	loc, err := s.ensureLocation(ctx, lat, lon, current)
	if err != nil {
		errs = append(errs, err)
	}

	if loc != nil {
		forecast.LocationID = loc.ID
		if err := s.storePrediction(ctx, loc.ID, tomorrow, result); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.publish(ctx, lat, lon, current, forecast); err != nil {
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	telemetry.EndSpan(span, err)
	return forecast, err
}

// Refresh warms current conditions and tomorrow's forecast for one
// coordinate, returning any persistence or publication errors.
func (s *Service) Refresh(ctx context.Context, lat, lon float64) (*Forecast, error) {
	current, currentErr := s.current(ctx, lat, lon)
	forecast, forecastErr := s.predict(ctx, lat, lon, current.Record)
	return forecast, errors.Join(currentErr, forecastErr)
}

// Locations lists monitored locations.
func (s *Service) Locations(ctx context.Context) ([]*store.Location, error) {
	if s.repo == nil {
		return []*store.Location{}, nil
	}
	return s.repo.ListLocations(ctx)
}

// AddLocation registers a location, returning whether it was created.
func (s *Service) AddLocation(ctx context.Context, loc *store.Location) (*store.Location, bool, error) {
	if s.repo == nil {
		return nil, false, ErrStorageDisabled
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = s.clock.Now().UTC()
	}
	return s.repo.AddLocation(ctx, loc)
}

// History lists a location's recent observations.
func (s *Service) History(ctx context.Context, locationID string, limit int) ([]*store.Observation, error) {
	if s.repo == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.repo.ListObservations(ctx, locationID, limit)
}

// Predictions lists a location's recent forecasts.
func (s *Service) Predictions(ctx context.Context, locationID string, limit int) ([]*store.StoredPrediction, error) {
	if s.repo == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.repo.ListPredictions(ctx, locationID, limit)
}

func (s *Service) ensureLocation(ctx context.Context, lat, lon float64, rec *airquality.Record) (*store.Location, error) {
	if s.repo == nil {
		return nil, nil
	}

	loc, err := s.repo.FindLocationNear(ctx, lat, lon)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, store.ErrLocationNotFound) {
		return nil, fmt.Errorf("find location: %w", err)
	}

	loc, created, err := s.repo.AddLocation(ctx, &store.Location{
		Name:      locationName(rec),
		Latitude:  lat,
		Longitude: lon,
		Country:   rec.Country,
		CreatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("add location: %w", err)
	}
	if created {
		s.logger.Info().
			Str("location_id", loc.ID).
			Str("name", loc.Name).
			Msg("location registered")
	}
	return loc, nil
}

func locationName(rec *airquality.Record) string {
	switch {
	case rec.City != "" && rec.City != "Unknown":
		return rec.City
	case rec.LocationName != "":
		return rec.LocationName
	default:
		return unknownLocationName
	}
}

func (s *Service) storePrediction(ctx context.Context, locationID string, day time.Time, result *prediction.Result) error {
	features, err := json.Marshal(result.InputFeatures)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	stored := &store.StoredPrediction{
		LocationID:      locationID,
		PredictionDate:  day,
		PredictedAQI:    result.PredictedAQI,
		Category:        result.Category,
		UsedFallback:    result.UsedFallback,
		InputFeatures:   features,
		ConfidenceScore: result.Confidence,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.repo.AddPrediction(ctx, stored); err != nil {
		return fmt.Errorf("store prediction: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, lat, lon float64, rec *airquality.Record, forecast *Forecast) error {
	event := events.ForecastCreated{
		ID:             uuid.NewString(),
		EventType:      events.EventForecastCreated,
		LocationID:     forecast.LocationID,
		Latitude:       lat,
		Longitude:      lon,
		PredictionDate: forecast.PredictionDate,
		PredictedAQI:   forecast.PredictedAQI,
		Category:       forecast.Category,
		UsedFallback:   forecast.UsedFallback,
		Source:         string(rec.Source),
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.publisher.PublishForecast(ctx, event); err != nil {
		return fmt.Errorf("publish forecast: %w", err)
	}
	return nil
}

func (s *Service) logPersistence(err error, lat, lon float64, what string) {
	if err == nil {
		return
	}
	s.logger.Warn().
		Err(err).
		Float64("lat", lat).
		Float64("lon", lon).
		Msgf("%s served without full persistence", what)
}

func coordAttrs(lat, lon float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64("geo.lat", lat),
		attribute.Float64("geo.lon", lon),
	}
}
