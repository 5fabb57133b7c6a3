// Package aqi implements the US EPA Air Quality Index arithmetic used across the
// service: the PM2.5 breakpoint transform and the six-tier categorizer.
package aqi

import (
	"math"
	"math/rand/v2"
)

// RandFunc returns a pseudo-random number in [0, 1).
type RandFunc func() float64

// DefaultRand is safe for concurrent use.
var DefaultRand RandFunc = rand.Float64

// breakpoint maps a PM2.5 concentration band (µg/m³) onto an AQI sub-range.
type breakpoint struct {
	concLow, concHigh   float64
	indexLow, indexHigh float64
}

// pm25Breakpoints are the EPA PM2.5 bands. The last band's slope is extended
// for concentrations above 350.4.
var pm25Breakpoints = []breakpoint{
	{0, 12.0, 0, 50},
	{12.1, 35.4, 50, 100},
	{35.5, 55.4, 100, 150},
	{55.5, 150.4, 150, 200},
	{150.5, 250.4, 200, 300},
	{250.5, 350.4, 300, 400},
}

// Degraded-mode bounds returned when no PM2.5 value is available.
const (
	EstimatedMin = 50
	EstimatedMax = 100
)

// MaxValue is the saturation point of Compute and Round.
const MaxValue = math.MaxInt32

// Compute applies the EPA piecewise-linear transform to a PM2.5 concentration.
func Compute(pm25 float64) int {
	if pm25 <= 0 || math.IsNaN(pm25) {
		return 0
	}
	if math.IsInf(pm25, 1) {
		return MaxValue
	}

	bp := pm25Breakpoints[len(pm25Breakpoints)-1]
	for _, b := range pm25Breakpoints {
		if pm25 <= b.concHigh {
			bp = b
			break
		}
	}

	value := bp.indexLow + (bp.indexHigh-bp.indexLow)/(bp.concHigh-bp.concLow)*(pm25-bp.concLow)
	// Concentrations between two bands (e.g. 12.05) would otherwise dip
	// below the previous band's top.
	if value < bp.indexLow {
		value = bp.indexLow
	}
	return Round(value)
}

// FromPM25 computes the AQI for an optional PM2.5 reading. A nil reading
// yields a value in [EstimatedMin, EstimatedMax] and estimated=true.
func FromPM25(pm25 *float64, rnd RandFunc) (value int, estimated bool) {
	if pm25 == nil {
		if rnd == nil {
			rnd = DefaultRand
		}
		return Round(EstimatedMin + rnd()*(EstimatedMax-EstimatedMin)), true
	}
	return Compute(*pm25), false
}

// Category is the qualitative severity tier of an AQI value.
type Category struct {
	Name  string `json:"category"`
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

// Severity tiers, ordered from least to most severe.
var (
	Good                  = Category{Name: "Good", Emoji: "🟢", Color: "#00e400"}
	Moderate              = Category{Name: "Moderate", Emoji: "🟡", Color: "#ffff00"}
	UnhealthyForSensitive = Category{Name: "Unhealthy for Sensitive", Emoji: "🟠", Color: "#ff7e00"}
	Unhealthy             = Category{Name: "Unhealthy", Emoji: "🔴", Color: "#ff0000"}
	VeryUnhealthy         = Category{Name: "Very Unhealthy", Emoji: "🟣", Color: "#8f3f97"}
	Hazardous             = Category{Name: "Hazardous", Emoji: "🟤", Color: "#7e0023"}
)

// Categorize maps an AQI value to its tier. Upper bounds are inclusive.
func Categorize(aqi int) Category {
	switch {
	case aqi <= 50:
		return Good
	case aqi <= 100:
		return Moderate
	case aqi <= 150:
		return UnhealthyForSensitive
	case aqi <= 200:
		return Unhealthy
	case aqi <= 300:
		return VeryUnhealthy
	default:
		return Hazardous
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds half up to the nearest integer, saturating at ±MaxValue.
// NaN rounds to 0.
func Round(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= MaxValue:
		return MaxValue
	case v <= -MaxValue:
		return -MaxValue
	}
	return int(math.Floor(v + 0.5))
}
