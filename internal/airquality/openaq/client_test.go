package openaq_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/airquality/openaq"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "52.37,4.89", r.URL.Query().Get("coordinates"))
		assert.Equal(t, "25000", r.URL.Query().Get("radius"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		response := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"location": "Amsterdam-Vondelpark",
					"city":     "Amsterdam",
					"country":  "NL",
					"coordinates": map[string]float64{
						"latitude":  52.358,
						"longitude": 4.868,
					},
					"measurements": []map[string]interface{}{
						{"parameter": "pm25", "value": 8.4, "unit": "µg/m³", "lastUpdated": "2025-03-14T08:00:00+00:00"},
						{"parameter": "NO2", "value": 21.0, "unit": "µg/m³", "lastUpdated": "2025-03-14T09:00:00+00:00"},
						{"parameter": "bc", "value": 1.2, "unit": "µg/m³", "lastUpdated": "2025-03-14T10:00:00+00:00"},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		HTTPClient: http.DefaultClient,
	})

	reading, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.NoError(t, err)

	assert.Equal(t, airquality.SourceOpenAQ, reading.Source)
	assert.Equal(t, "Amsterdam-Vondelpark", reading.LocationName)
	assert.Equal(t, "Amsterdam", reading.City)
	assert.Equal(t, "NL", reading.Country)
	assert.Equal(t, airquality.Coordinates{Latitude: 52.358, Longitude: 4.868}, reading.Coordinates)

	require.NotNil(t, reading.Pollutants.PM25)
	assert.Equal(t, 8.4, *reading.Pollutants.PM25)
	require.NotNil(t, reading.Pollutants.NO2)
	assert.Equal(t, 21.0, *reading.Pollutants.NO2)
	assert.Nil(t, reading.Pollutants.PM10)
	assert.Nil(t, reading.Index)

	// Untracked parameters do not advance the observation time.
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), reading.ObservedAt)
}

func TestClient_Fetch_NoData(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no results", `{"results": []}`},
		{"no measurements", `{"results": [{"location": "X", "measurements": []}]}`},
		{"only untracked", `{"results": [{"location": "X", "measurements": [{"parameter": "bc", "value": 1}]}]}`},
		{"station outside radius", `{"results": [{"location": "X", "coordinates": {"latitude": 10, "longitude": 10},
			"measurements": [{"parameter": "pm25", "value": 1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})

			_, err := client.Fetch(context.Background(), 52.37, 4.89)
			assert.ErrorIs(t, err, airquality.ErrNoData)
		})
	}
}

func TestClient_Fetch_NoAPIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})
	_, _ = client.Fetch(context.Background(), 1, 2)
}

func TestClient_Fetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})

	_, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_Fetch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})

	_, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode latest response")
}

func TestClient_Fetch_DefaultClientIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, Registry: registry})

	_, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, registry.GetHealth(openaq.ProviderName))
}

func TestClient_Fetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, 52.37, 4.89)
	require.Error(t, err)
}

func TestClient_Fetch_MissingCity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"location": "Station 9", "city": null, "country": "GB",
			"measurements": [{"parameter": "pm10", "value": 14.2}]}]}`))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient})

	reading, err := client.Fetch(context.Background(), 51.5, -0.1)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", reading.City)
	assert.Equal(t, airquality.Coordinates{Latitude: 51.5, Longitude: -0.1}, reading.Coordinates)
	assert.True(t, reading.ObservedAt.IsZero())
}
