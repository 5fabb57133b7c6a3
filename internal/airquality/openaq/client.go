// Package openaq provides a client for the OpenAQ v2 "latest" endpoint.
package openaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/geo"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the OpenAQ API.
	DefaultBaseURL = "https://api.openaq.org/v2"

	// ProviderName identifies this provider.
	ProviderName = "openaq"

	// DefaultRadius is the search radius around the query point, in meters.
	DefaultRadius = 25000

	unknownCity = "Unknown"
)

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// Radius is the search radius in meters (default: DefaultRadius).
	Radius int

	// HTTPClient is the HTTP client to use.
	// If nil, a single-attempt resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 5s).
	Timeout time.Duration

	// Registry receives the default client for health reporting.
	Registry *resilience.Registry

	// Logger receives circuit breaker transitions of the default client.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an OpenAQ API client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	apiKey     string
	radius     int
	httpClient HTTPDoer
}

var _ airquality.Provider = (*Client)(nil)

// NewClient creates a new OpenAQ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	radius := cfg.Radius
	if radius <= 0 {
		radius = DefaultRadius
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:     ProviderName,
			Timeout:  timeout,
			Registry: cfg.Registry,
			Logger:   cfg.Logger,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		radius:     radius,
		httpClient: httpClient,
	}
}

// Name implements airquality.Provider.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from the OpenAQ v2 API).

type latestResponse struct {
	Results []latestResult `json:"results"`
}

type latestResult struct {
	Location     string            `json:"location"`
	City         *string           `json:"city"`
	Country      string            `json:"country"`
	Coordinates  *coordinates      `json:"coordinates"`
	Measurements []measurementData `json:"measurements"`
}

type coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type measurementData struct {
	Parameter   string  `json:"parameter"`
	Value       float64 `json:"value"`
	LastUpdated string  `json:"lastUpdated"`
	Unit        string  `json:"unit"`
}

// Fetch retrieves the latest measurements of the station nearest to lat/lon.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*airquality.Reading, error) {
	q := url.Values{}
	q.Set("coordinates", formatCoord(lat)+","+formatCoord(lon))
	q.Set("radius", strconv.Itoa(c.radius))
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: latest endpoint returned 404", airquality.ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from latest endpoint", resp.StatusCode)
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode latest response: %w", err)
	}

	if len(result.Results) == 0 || len(result.Results[0].Measurements) == 0 {
		return nil, airquality.ErrNoData
	}

	return c.toReading(&result.Results[0], lat, lon)
}

// toReading converts the first API result to a provider reading.
func (c *Client) toReading(r *latestResult, lat, lon float64) (*airquality.Reading, error) {
	reading := &airquality.Reading{
		Source:       airquality.SourceOpenAQ,
		LocationName: r.Location,
		City:         unknownCity,
		Country:      r.Country,
		Coordinates:  airquality.Coordinates{Latitude: lat, Longitude: lon},
	}
	if r.City != nil && *r.City != "" {
		reading.City = *r.City
	}

	if r.Coordinates != nil {
		// The API occasionally ignores the radius filter.
		distKm := geo.DistanceKm(lat, lon, r.Coordinates.Latitude, r.Coordinates.Longitude)
		if distKm*1000 > float64(c.radius) {
			return nil, fmt.Errorf("%w: nearest station is %.1f km away", airquality.ErrNoData, distKm)
		}
		reading.Coordinates = airquality.Coordinates{
			Latitude:  r.Coordinates.Latitude,
			Longitude: r.Coordinates.Longitude,
		}
	}

	for _, m := range r.Measurements {
		if !reading.Pollutants.Set(m.Parameter, m.Value) {
			continue // not a tracked pollutant
		}
		if t, err := time.Parse(time.RFC3339, m.LastUpdated); err == nil && t.After(reading.ObservedAt) {
			reading.ObservedAt = t.UTC()
		}
	}

	if reading.Pollutants.Empty() {
		return nil, airquality.ErrNoData
	}

	return reading, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
