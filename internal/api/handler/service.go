// Package handler provides HTTP handlers for the forecast API.
package handler

import (
	"context"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/store"
)

// ForecastService is the subset of forecast.Service the handlers use.
type ForecastService interface {
	Current(ctx context.Context, lat, lon float64) *forecast.CurrentConditions
	Predict(ctx context.Context, lat, lon float64, current *airquality.Record) *forecast.Forecast
	Locations(ctx context.Context) ([]*store.Location, error)
	AddLocation(ctx context.Context, loc *store.Location) (*store.Location, bool, error)
	History(ctx context.Context, locationID string, limit int) ([]*store.Observation, error)
	Predictions(ctx context.Context, locationID string, limit int) ([]*store.StoredPrediction, error)
}

var _ ForecastService = (*forecast.Service)(nil)
