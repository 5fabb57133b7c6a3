package airquality

import (
	"math"

	"github.com/jonboulle/clockwork"

	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/geo"
)

// Synthetic AQI bounds.
const (
	SyntheticMinAQI = 10
	SyntheticMaxAQI = 300
)

// Generator produces plausible readings from geographic heuristics when no
// upstream provider has data.
type Generator struct {
	rnd   aqi.RandFunc
	clock clockwork.Clock
}

// NewGenerator creates a generator. Nil arguments select the defaults.
func NewGenerator(rnd aqi.RandFunc, clock clockwork.Clock) *Generator {
	if rnd == nil {
		rnd = aqi.DefaultRand
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{rnd: rnd, clock: clock}
}

// Generate builds a synthetic record for a coordinate. The AQI lies in
// [SyntheticMinAQI, SyntheticMaxAQI] and every pollutant is populated.
func (g *Generator) Generate(lat, lon float64) *Record {
	base := geo.BaselinePollution(lat, lon, g.rnd)
	index := aqi.Clamp(aqi.Round(base+g.jitter(20)), SyntheticMinAQI, SyntheticMaxAQI)
	a := float64(index)

	pm25 := math.Max(1, a*0.3+g.jitter(10))
	pm10 := math.Max(1, pm25*1.5+g.jitter(5))
	o3 := math.Max(10, a*0.4+g.jitter(15))
	no2 := math.Max(5, a*0.25+g.jitter(8))
	so2 := math.Max(1, a*0.1+g.jitter(3))
	co := math.Max(0.1, a*0.02+g.jitter(0.5))

	city := geo.NearestKnownCity(lat, lon)

	return &Record{
		Source:       SourceSynthetic,
		LocationName: city,
		City:         city,
		Country:      geo.CountryOf(lat, lon),
		Coordinates:  Coordinates{Latitude: lat, Longitude: lon},
		Pollutants: Pollutants{
			PM25: round1(pm25),
			PM10: round1(pm10),
			O3:   round1(o3),
			NO2:  round1(no2),
			SO2:  round1(so2),
			CO:   round2(co),
		},
		AQI:         index,
		LastUpdated: g.clock.Now().UTC(),
		Weather: Weather{
			Temperature: round1(15 + g.rnd()*20),
			Humidity:    round1(40 + g.rnd()*40),
			WindSpeed:   round1(3 + g.rnd()*10),
			Pressure:    round2(1000 + g.rnd()*30),
		},
	}
}

// jitter returns a value in [-width/2, width/2).
func (g *Generator) jitter(width float64) float64 {
	return (g.rnd() - 0.5) * width
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}
