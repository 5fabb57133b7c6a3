// Package waqi provides a client for the World Air Quality Index geo feed.
package waqi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the WAQI API.
	DefaultBaseURL = "https://api.waqi.info"

	// ProviderName identifies this provider.
	ProviderName = "waqi"

	unknown = "Unknown"
)

// ClientConfig holds configuration for the WAQI client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// Token is the API token. Without one the client reports no data
	// without calling the API.
	Token string

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

// Client is a WAQI API client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
}

var _ airquality.Provider = (*Client)(nil)

// NewClient creates a new WAQI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		token:      cfg.Token,
		httpClient: httpClient,
	}
}

// Name implements airquality.Provider.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from the WAQI feed API).

type feedResponse struct {
	Status string `json:"status"`

	// Data is an object on success and a message string on error.
	Data json.RawMessage `json:"data"`
}

type feedData struct {
	AQI  indexValue `json:"aqi"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	IAQI map[string]struct {
		V float64 `json:"v"`
	} `json:"iaqi"`
	Time struct {
		ISO string `json:"iso"`
	} `json:"time"`
}

// indexValue is the feed's "aqi" field: a number, a numeric string, or "-"
// when the station has no current index.
type indexValue struct {
	value *int
}

func (v *indexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	raw := string(b)
	if s, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(s)
	}
	if raw == "" || raw == "-" {
		return nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse aqi %q: %w", raw, err)
	}
	// Integer part, as the feed reports whole index values.
	i := int(math.Trunc(f))
	v.value = &i
	return nil
}

// Fetch retrieves current conditions from the station nearest to lat/lon.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*airquality.Reading, error) {
	if c.token == "" {
		return nil, fmt.Errorf("%w: no api token configured", airquality.ErrNoData)
	}

	endpoint := fmt.Sprintf("%s/feed/geo:%s;%s/?%s", c.baseURL,
		formatCoord(lat), formatCoord(lon), url.Values{"token": {c.token}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from feed endpoint", resp.StatusCode)
	}

	var result feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	if result.Status != "ok" {
		return nil, fmt.Errorf("%w: feed status %q", airquality.ErrNoData, result.Status)
	}
	if len(result.Data) == 0 || bytes.Equal(result.Data, []byte("null")) {
		return nil, airquality.ErrNoData
	}

	var data feedData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("decode feed data: %w", err)
	}
	if data.AQI.value == nil {
		return nil, airquality.ErrNoData
	}

	return toReading(&data, lat, lon), nil
}

// toReading converts feed data to a provider reading. WAQI reports no
// country, and its station position is not used.
func toReading(d *feedData, lat, lon float64) *airquality.Reading {
	name := d.City.Name
	if name == "" {
		name = unknown
	}

	reading := &airquality.Reading{
		Source:       airquality.SourceWAQI,
		LocationName: name,
		City:         name,
		Country:      unknown,
		Coordinates:  airquality.Coordinates{Latitude: lat, Longitude: lon},
		Index:        d.AQI.value,
	}

	for param, sub := range d.IAQI {
		reading.Pollutants.Set(param, sub.V)
	}

	if t, err := time.Parse(time.RFC3339, d.Time.ISO); err == nil {
		reading.ObservedAt = t.UTC()
	}

	return reading
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
