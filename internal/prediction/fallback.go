package prediction

import (
	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/aqi"
)

// Fallback AQI bounds.
const (
	FallbackMinAQI = 10
	FallbackMaxAQI = 300

	defaultFallbackAQI = 50
)

// FallbackAQI estimates tomorrow's AQI without a model: a coarse tie point
// from PM2.5 (or the record's current AQI) plus ±10 jitter, clamped to
// [FallbackMinAQI, FallbackMaxAQI].
func FallbackAQI(rec *airquality.Record, rnd aqi.RandFunc) int {
	if rnd == nil {
		rnd = aqi.DefaultRand
	}

	base := float64(defaultFallbackAQI)
	switch {
	case rec == nil:
	case rec.PM25 != nil:
		base = pm25TiePoint(*rec.PM25)
	case rec.AQI > 0:
		base = float64(rec.AQI)
	}

	v := base + (rnd()-0.5)*20
	if v < FallbackMinAQI {
		v = FallbackMinAQI
	}
	if v > FallbackMaxAQI {
		v = FallbackMaxAQI
	}
	return aqi.Round(v)
}

func pm25TiePoint(pm25 float64) float64 {
	switch {
	case pm25 <= 12:
		return 25
	case pm25 <= 35:
		return 75
	case pm25 <= 55:
		return 125
	case pm25 <= 150:
		return 175
	default:
		return 225
	}
}
