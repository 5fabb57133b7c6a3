// Package store persists monitored locations, their daily observations and
// the forecasts issued for them.
package store

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/aqforecast/aqforecast/internal/airquality"
)

// Repository errors.
var (
	ErrLocationNotFound = errors.New("location not found")
)

// Default list sizes.
const (
	DefaultObservationLimit = 30
	DefaultPredictionLimit  = 10

	// NearDegrees is the per-axis tolerance under which two coordinates are
	// treated as the same location.
	NearDegrees = 0.01
)

// Location is a monitored place.
type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Near reports whether lat/lon falls within NearDegrees of the location on
// both axes.
func (l *Location) Near(lat, lon float64) bool {
	return math.Abs(l.Latitude-lat) < NearDegrees && math.Abs(l.Longitude-lon) < NearDegrees
}

// Observation is the daily air quality snapshot for a location. A later
// observation for the same day replaces the earlier one.
type Observation struct {
	LocationID string            `json:"locationId"`
	Date       time.Time         `json:"date"`
	Source     airquality.Source `json:"source"`
	airquality.Pollutants
	airquality.Weather
	AQI        int       `json:"aqi"`
	RecordedAt time.Time `json:"recordedAt"`
}

// ObservationFromRecord builds the daily observation for rec.
func ObservationFromRecord(locationID string, rec *airquality.Record, now time.Time) Observation {
	return Observation{
		LocationID: locationID,
		Date:       Day(now),
		Source:     rec.Source,
		Pollutants: rec.Pollutants,
		Weather:    rec.Weather,
		AQI:        rec.AQI,
		RecordedAt: now.UTC(),
	}
}

// StoredPrediction is a persisted forecast.
type StoredPrediction struct {
	ID              string          `json:"id"`
	LocationID      string          `json:"locationId"`
	PredictionDate  time.Time       `json:"predictionDate"`
	PredictedAQI    int             `json:"predictedAqi"`
	Category        string          `json:"category"`
	UsedFallback    bool            `json:"usedFallback"`
	InputFeatures   json.RawMessage `json:"inputFeatures"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
