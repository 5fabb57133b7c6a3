// Package worker runs the background refresh that keeps current conditions
// and next-day forecasts warm for a set of coordinates.
package worker

import (
	"time"

	"github.com/aqforecast/aqforecast/internal/geo"
	"github.com/aqforecast/aqforecast/internal/store"
)

// Target is a coordinate to refresh.
type Target struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RefreshConfig holds configuration for the refresh job.
type RefreshConfig struct {
	// Targets are always refreshed. If empty, DefaultTargets is used.
	Targets []Target

	// Concurrency is the number of concurrent refreshes.
	// Default: 4
	Concurrency int

	// Timeout bounds each target's refresh.
	// Default: 2 minutes
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:     DefaultTargets(),
		Concurrency: 4,
		Timeout:     2 * time.Minute,
	}
}

// DefaultTargets returns the known-city table as refresh targets.
func DefaultTargets() []Target {
	cities := geo.KnownCities()
	targets := make([]Target, 0, len(cities))
	for _, c := range cities {
		targets = append(targets, Target{Name: c.Name, Latitude: c.Latitude, Longitude: c.Longitude})
	}
	return targets
}

// mergeTargets appends stored locations that are not near any base target.
func mergeTargets(base []Target, locations []*store.Location) []Target {
	out := append([]Target(nil), base...)
	for _, loc := range locations {
		dup := false
		for _, t := range out {
			if loc.Near(t.Latitude, t.Longitude) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, Target{Name: loc.Name, Latitude: loc.Latitude, Longitude: loc.Longitude})
		}
	}
	return out
}
