// Package prediction turns a canonical air quality record into a next-day AQI
// forecast, calling an external predictor and falling back to a statistical
// estimate when the predictor is unavailable.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aqforecast/aqforecast/internal/airquality"
)

// Predictor errors.
var (
	// ErrPredictorFailed is returned when the predictor could not run or exited non-zero.
	ErrPredictorFailed = errors.New("predictor failed")

	// ErrInvalidOutput is returned when the predictor's output is not a usable prediction.
	ErrInvalidOutput = errors.New("invalid predictor output")

	// ErrPredictorReported is returned when the predictor itself reports an error.
	ErrPredictorReported = errors.New("predictor reported error")

	// ErrNoPredictor is returned when no predictor is configured.
	ErrNoPredictor = errors.New("no predictor configured")
)

// Reference values substituted for missing feature inputs.
const (
	DefaultPM25        = 15.0
	DefaultPM10        = 25.0
	DefaultO3          = 40.0
	DefaultNO2         = 30.0
	DefaultSO2         = 8.0
	DefaultCO          = 1.0
	DefaultTemperature = 20.0
	DefaultHumidity    = 60.0
	DefaultWindSpeed   = 8.0
	DefaultPressure    = 1013.25
)

// Features is the fixed-shape input vector sent to the predictor.
// Every key is always present.
type Features struct {
	PM25        float64 `json:"pm25"`
	PM10        float64 `json:"pm10"`
	O3          float64 `json:"o3"`
	NO2         float64 `json:"no2"`
	SO2         float64 `json:"so2"`
	CO          float64 `json:"co"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// BuildFeatures derives the feature vector from a record, substituting the
// reference values for absent measurements.
func BuildFeatures(rec *airquality.Record) Features {
	return Features{
		PM25:        valueOr(rec.PM25, DefaultPM25),
		PM10:        valueOr(rec.PM10, DefaultPM10),
		O3:          valueOr(rec.O3, DefaultO3),
		NO2:         valueOr(rec.NO2, DefaultNO2),
		SO2:         valueOr(rec.SO2, DefaultSO2),
		CO:          valueOr(rec.CO, DefaultCO),
		Temperature: valueOr(rec.Temperature, DefaultTemperature),
		Humidity:    valueOr(rec.Humidity, DefaultHumidity),
		WindSpeed:   valueOr(rec.WindSpeed, DefaultWindSpeed),
		Pressure:    valueOr(rec.Pressure, DefaultPressure),
		Latitude:    rec.Coordinates.Latitude,
		Longitude:   rec.Coordinates.Longitude,
	}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Inference is a successful predictor answer.
type Inference struct {
	PredictedAQI float64
	Category     string

	// Confidence is reported by some predictors; nil otherwise.
	Confidence *float64
}

// Predictor runs a single inference. Implementations must not retry.
type Predictor interface {
	Infer(ctx context.Context, features Features) (*Inference, error)
}

// MaxPredictedAQI is the largest forecast accepted from a predictor.
const MaxPredictedAQI = 1000

func checkPredictedAQI(v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Errorf("%w: predicted_aqi is not finite", ErrInvalidOutput)
	case v < 0:
		return fmt.Errorf("%w: predicted_aqi %g is negative", ErrInvalidOutput, v)
	case v > MaxPredictedAQI:
		return fmt.Errorf("%w: predicted_aqi %g exceeds %d", ErrInvalidOutput, v, MaxPredictedAQI)
	}
	return nil
}

// predictorOutput is the wire shape shared by every predictor transport.
type predictorOutput struct {
	PredictedAQI *float64 `json:"predicted_aqi"`
	Category     string   `json:"category"`
	Confidence   *float64 `json:"confidence"`
	Error        string   `json:"error"`
}

// ParseOutput decodes a predictor's JSON answer. An answer carrying "error"
// or lacking "predicted_aqi" is a failure even if it is valid JSON.
func ParseOutput(data []byte) (*Inference, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}

	var out predictorOutput
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrPredictorReported, out.Error)
	}
	if out.PredictedAQI == nil {
		return nil, fmt.Errorf("%w: missing predicted_aqi", ErrInvalidOutput)
	}
	if err := checkPredictedAQI(*out.PredictedAQI); err != nil {
		return nil, err
	}

	return &Inference{
		PredictedAQI: *out.PredictedAQI,
		Category:     out.Category,
		Confidence:   out.Confidence,
	}, nil
}

// Result is the outcome of a forecast request. PredictedAQI is always set.
type Result struct {
	Success       bool     `json:"success"`
	PredictedAQI  int      `json:"predictedAqi"`
	Category      string   `json:"category"`
	Emoji         string   `json:"emoji"`
	SeverityColor string   `json:"severityColor"`
	UsedFallback  bool     `json:"usedFallback"`
	Confidence    *float64 `json:"confidence,omitempty"`
	ErrorDetail   string   `json:"errorDetail,omitempty"` // set only when inference failed
	InputFeatures Features `json:"inputFeatures"`
}
