// Package airquality resolves current air quality for a coordinate from an
// ordered chain of upstream providers, falling back to a synthetic reading.
package airquality

import (
	"errors"
	"strings"
	"time"
)

// Provider errors.
var (
	// ErrNoData signals that a provider had no usable reading for a location.
	ErrNoData = errors.New("no air quality data available")

	ErrProviderUnavailable = errors.New("air quality provider unavailable")
)

// Source identifies where a record's values came from.
type Source string

const (
	SourceOpenAQ    Source = "OpenAQ"
	SourceWAQI      Source = "WAQI"
	SourceSynthetic Source = "Synthetic"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Pollutants holds concentrations as reported by the source (µg/m³, CO in
// mg/m³). A nil field means the source did not report that pollutant.
type Pollutants struct {
	PM25 *float64 `json:"pm25"`
	PM10 *float64 `json:"pm10"`
	O3   *float64 `json:"o3"`
	NO2  *float64 `json:"no2"`
	SO2  *float64 `json:"so2"`
	CO   *float64 `json:"co"`
}

// Set stores a value under its provider parameter name. Names are matched
// case-insensitively and "pm2.5"/"pm2_5" spellings are accepted.
// It reports whether the parameter is one of the tracked pollutants.
func (p *Pollutants) Set(parameter string, value float64) bool {
	key := strings.ToLower(parameter)
	key = strings.NewReplacer(".", "", "_", "").Replace(key)

	v := value
	switch key {
	case "pm25":
		p.PM25 = &v
	case "pm10":
		p.PM10 = &v
	case "o3":
		p.O3 = &v
	case "no2":
		p.NO2 = &v
	case "so2":
		p.SO2 = &v
	case "co":
		p.CO = &v
	default:
		return false
	}
	return true
}

// Empty reports whether no pollutant is set.
func (p Pollutants) Empty() bool {
	return p.PM25 == nil && p.PM10 == nil && p.O3 == nil &&
		p.NO2 == nil && p.SO2 == nil && p.CO == nil
}

// Weather carries meteorological context. Only synthetic readings set it.
type Weather struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
}

// Record is the canonical air quality record for a coordinate.
// Records returned by the resolver always carry an AQI.
type Record struct {
	Source       Source      `json:"source"`
	LocationName string      `json:"locationName"`
	City         string      `json:"city"`
	Country      string      `json:"country"`
	Coordinates  Coordinates `json:"coordinates"`
	Pollutants
	AQI int `json:"aqi"`

	// AQIEstimated is set when no PM2.5 value was available and the AQI
	// was drawn from the degraded range.
	AQIEstimated bool      `json:"aqiEstimated"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Weather
}

// Reading is what a provider returns before normalization.
type Reading struct {
	Source       Source
	LocationName string
	City         string
	Country      string
	Coordinates  Coordinates
	Pollutants   Pollutants

	// Index is the provider's own AQI, if it reports one.
	Index *int

	// ObservedAt is the measurement time; zero when the provider omits it.
	ObservedAt time.Time
}
