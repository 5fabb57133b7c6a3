// Package geo holds the coarse geographic tables used to synthesize plausible
// readings when no upstream source has data: baseline pollution tiers, a small
// city lookup and country bounding boxes.
package geo

import (
	"fmt"
	"math"
)

// box is an open latitude/longitude rectangle.
type box struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b box) contains(lat, lon float64) bool {
	return lat > b.minLat && lat < b.maxLat && lon > b.minLon && lon < b.maxLon
}

// tier is a baseline AQI range, base + rand*spread.
type tier struct {
	base, spread float64
	regions      []box
}

var (
	highPollution = tier{
		base: 120, spread: 60,
		regions: []box{
			{25, 35, 75, 85},    // northern India
			{35, 45, 110, 125},  // northern China
			{19, 20, -100, -98}, // Mexico City
		},
	}
	moderatePollution = tier{
		base: 60, spread: 40,
		regions: []box{
			{40, 42, -75, -73},   // New York
			{33, 35, -119, -117}, // Los Angeles
			{51, 52, -1, 1},      // London
		},
	}
	cleanBaseline = tier{base: 30, spread: 30}
)

// BaselinePollution returns a plausible AQI baseline for a coordinate,
// before jitter. rnd must return values in [0, 1).
func BaselinePollution(lat, lon float64, rnd func() float64) float64 {
	for _, t := range []tier{highPollution, moderatePollution} {
		for _, r := range t.regions {
			if r.contains(lat, lon) {
				return t.base + rnd()*t.spread
			}
		}
	}
	return cleanBaseline.base + rnd()*cleanBaseline.spread
}

// City is an entry of the known-city table.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

var knownCities = []City{
	{"New York", 40.7, -74.0},
	{"Los Angeles", 34.0, -118.2},
	{"London", 51.5, -0.1},
	{"Beijing", 39.9, 116.4},
	{"Tokyo", 35.7, 139.7},
	{"Delhi", 28.7, 77.1},
	{"Paris", 48.9, 2.4},
	{"Sydney", -33.9, 151.2},
}

type tenths struct{ lat, lon int }

func toTenths(lat, lon float64) tenths {
	return tenths{
		lat: int(math.Floor(lat*10 + 0.5)),
		lon: int(math.Floor(lon*10 + 0.5)),
	}
}

var citiesByTenths = func() map[tenths]string {
	m := make(map[tenths]string, len(knownCities))
	for _, c := range knownCities {
		m[toTenths(c.Latitude, c.Longitude)] = c.Name
	}
	return m
}()

// KnownCities returns a copy of the city table.
func KnownCities() []City {
	out := make([]City, len(knownCities))
	copy(out, knownCities)
	return out
}

// NearestKnownCity names the known city whose coordinates match lat/lon at
// 0.1° resolution, or a "Location lat, lon" label when there is none.
func NearestKnownCity(lat, lon float64) string {
	if name, ok := citiesByTenths[toTenths(lat, lon)]; ok {
		return name
	}
	return fmt.Sprintf("Location %.2f, %.2f", lat, lon)
}

// UnknownCountry is returned when no bounding box matches.
const UnknownCountry = "Unknown"

// Evaluated in order; the first match wins.
var countries = []struct {
	name string
	box  box
}{
	{"USA", box{24, 50, -125, -66}},
	{"UK", box{49, 61, -8, 2}},
	{"China", box{35, 54, 73, 135}},
	{"Japan", box{30, 46, 129, 146}},
	{"India", box{6, 37, 68, 97}},
	{"France", box{41, 51, -5, 10}},
	{"Australia", box{-44, -10, 113, 154}},
}

// CountryOf returns a best-effort country name for a coordinate.
func CountryOf(lat, lon float64) string {
	for _, c := range countries {
		if c.box.contains(lat, lon) {
			return c.name
		}
	}
	return UnknownCountry
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points in kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
