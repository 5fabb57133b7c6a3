package models

import "github.com/aqforecast/aqforecast/internal/airquality"

// Coordinates are path-supplied coordinates.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// PredictRequest is the body of POST /api/predict. CurrentData, when
// present, is used instead of resolving current conditions.
type PredictRequest struct {
	Latitude    *float64           `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64           `json:"longitude" validate:"required,gte=-180,lte=180"`
	CurrentData *airquality.Record `json:"currentData,omitempty"`
}

// CreateLocationRequest is the body of POST /api/locations.
type CreateLocationRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Country   string   `json:"country" validate:"max=100"`
}

// ListQuery holds the limit query parameter of the history endpoints.
type ListQuery struct {
	Limit int `json:"limit" validate:"gte=0,lte=365"`
}
