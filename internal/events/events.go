// Package events publishes forecast lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"
)

// EventForecastCreated is emitted after a forecast has been issued.
const EventForecastCreated = "forecast.created"

// ForecastCreated describes an issued forecast.
type ForecastCreated struct {
	ID             string    `json:"id"`
	EventType      string    `json:"event_type"`
	LocationID     string    `json:"location_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	PredictionDate string    `json:"prediction_date"`
	PredictedAQI   int       `json:"predicted_aqi"`
	Category       string    `json:"category"`
	UsedFallback   bool      `json:"used_fallback"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher emits forecast events.
type Publisher interface {
	PublishForecast(ctx context.Context, event ForecastCreated) error
	Close() error
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

// PublishForecast does nothing.
func (NopPublisher) PublishForecast(context.Context, ForecastCreated) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

var _ Publisher = NopPublisher{}
