package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/api"
	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/auth"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/prediction"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/store"
)

const testSigningKey = "test-secret-key-for-testing-only"

type syntheticResolver struct{}

func (syntheticResolver) Resolve(_ context.Context, lat, lon float64) *airquality.Record {
	pm := 10.0
	return &airquality.Record{
		Source:      airquality.SourceSynthetic,
		City:        "Test City",
		Coordinates: airquality.Coordinates{Latitude: lat, Longitude: lon},
		Pollutants:  airquality.Pollutants{PM25: &pm},
		AQI:         42,
	}
}

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey})
}

func newTestRouter(t *testing.T, opts ...func(*api.RouterConfig)) http.Handler {
	t.Helper()

	svc := forecast.NewService(forecast.ServiceConfig{
		Resolver:   syntheticResolver{},
		Forecaster: prediction.NewBridge(prediction.BridgeConfig{Logger: zerolog.Nop()}),
		Repository: store.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})

	cfg := api.RouterConfig{
		Version:        "test",
		BuildTime:      "2025-01-01T00:00:00Z",
		Logger:         zerolog.New(io.Discard),
		Service:        svc,
		Providers:      resilience.NewRegistry(),
		TokenValidator: testJWTService(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return api.NewRouter(cfg)
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_AirQuality(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/air-quality/51.5/-0.12", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Synthetic", body["source"])
	assert.Equal(t, "Good", body["category"])
}

func TestRouter_Predict_FallsBackWithoutPredictor(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"latitude": 51.5, "longitude": -0.12}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["usedFallback"])
	assert.NotEmpty(t, body["errorDetail"])
	assert.NotEmpty(t, body["predictionDate"])
}

func TestRouter_Predict_RejectsNonJSON(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`latitude=1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(router, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouter_Locations(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/locations", strings.NewReader(`{"name": "Office", "latitude": 51.5, "longitude": -0.12}`))
	rec := serve(router, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/locations", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.ListResponse[store.Location]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Office", list.Items[0].Name)
}

func TestRouter_OpsStatus_RequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/ops/status", http.NoBody))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestRouter_OpsStatus_WithToken(t *testing.T) {
	router := newTestRouter(t)

	token, _, err := testJWTService().GenerateAccessToken("ops@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ops/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
}

func TestRouter_OpsStatus_NotMountedWithoutValidator(t *testing.T) {
	router := newTestRouter(t, func(cfg *api.RouterConfig) { cfg.TokenValidator = nil })

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/ops/status", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PredictRateLimit(t *testing.T) {
	router := newTestRouter(t, func(cfg *api.RouterConfig) {
		cfg.PredictRateLimit = middleware.PerMinute(2)
	})

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"latitude": 1, "longitude": 1}`))
		req.RemoteAddr = "203.0.113.7:4000"
		codes = append(codes, serve(router, req).Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouter_RequireTLS(t *testing.T) {
	router := newTestRouter(t, func(cfg *api.RouterConfig) { cfg.RequireTLS = true })

	req := httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	rec := serve(router, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_RequestID(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req_"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody)
	req.Header.Set("X-Request-Id", "client-id-123")
	rec = serve(router, req)
	assert.Equal(t, "client-id-123", rec.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/routes", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
