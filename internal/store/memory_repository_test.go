package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/store"
)

func ptr(v float64) *float64 { return &v }

func addLocation(t *testing.T, repo *store.InMemoryRepository, name string, lat, lon float64) *store.Location {
	t.Helper()
	loc, created, err := repo.AddLocation(context.Background(), &store.Location{Name: name, Latitude: lat, Longitude: lon})
	require.NoError(t, err)
	require.True(t, created)
	return loc
}

func TestInMemoryRepository_AddLocation(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()

	first, created, err := repo.AddLocation(ctx, &store.Location{Name: "London", Latitude: 51.5074, Longitude: -0.1278, Country: "UK"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	again, created, err := repo.AddLocation(ctx, &store.Location{Name: "Westminster", Latitude: 51.5, Longitude: -0.12})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "London", again.Name)

	_, created, err = repo.AddLocation(ctx, &store.Location{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522})
	require.NoError(t, err)
	assert.True(t, created)

	locations, err := repo.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "London", locations[0].Name)
	assert.Equal(t, "Paris", locations[1].Name)
}

func TestInMemoryRepository_ConcurrentAddCreatesOne(t *testing.T) {
	repo := store.NewInMemoryRepository()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.AddLocation(context.Background(), &store.Location{Name: "Delhi", Latitude: 28.6139, Longitude: 77.209})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
}

func TestInMemoryRepository_FindLocationNear(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	loc := addLocation(t, repo, "Tokyo", 35.6762, 139.6503)

	found, err := repo.FindLocationNear(ctx, 35.68, 139.655)
	require.NoError(t, err)
	assert.Equal(t, loc.ID, found.ID)

	_, err = repo.FindLocationNear(ctx, 35.6962, 139.6503)
	assert.ErrorIs(t, err, store.ErrLocationNotFound, "0.02 apart is not near")

	_, err = repo.FindLocationNear(ctx, 0, 0)
	assert.ErrorIs(t, err, store.ErrLocationNotFound)
}

func TestInMemoryRepository_GetLocation(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	loc := addLocation(t, repo, "Sydney", -33.8688, 151.2093)

	got, err := repo.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sydney", got.Name)

	got.Name = "mutated"
	again, err := repo.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sydney", again.Name)

	_, err = repo.GetLocation(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrLocationNotFound)
}

func TestInMemoryRepository_Observations(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	loc := addLocation(t, repo, "Beijing", 39.9042, 116.4074)

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		obs := &store.Observation{
			LocationID: loc.ID,
			Date:       base.AddDate(0, 0, i),
			Source:     airquality.SourceWAQI,
			Pollutants: airquality.Pollutants{PM25: ptr(float64(i))},
			AQI:        i,
		}
		require.NoError(t, repo.UpsertObservation(ctx, obs))
	}

	// Same day again replaces the earlier row.
	require.NoError(t, repo.UpsertObservation(ctx, &store.Observation{
		LocationID: loc.ID,
		Date:       base.AddDate(0, 0, 39).Add(10 * time.Hour),
		Source:     airquality.SourceSynthetic,
		AQI:        999,
	}))

	observations, err := repo.ListObservations(ctx, loc.ID, 0)
	require.NoError(t, err)
	require.Len(t, observations, store.DefaultObservationLimit)
	assert.Equal(t, 999, observations[0].AQI)
	assert.Equal(t, airquality.SourceSynthetic, observations[0].Source)
	assert.Equal(t, store.Day(base.AddDate(0, 0, 39)), observations[0].Date)
	assert.Equal(t, 38, observations[1].AQI)

	limited, err := repo.ListObservations(ctx, loc.ID, 5)
	require.NoError(t, err)
	assert.Len(t, limited, 5)

	err = repo.UpsertObservation(ctx, &store.Observation{LocationID: "missing", Date: base})
	assert.ErrorIs(t, err, store.ErrLocationNotFound)
}

func TestInMemoryRepository_Predictions(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	loc := addLocation(t, repo, "Mumbai", 19.076, 72.8777)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		p := &store.StoredPrediction{
			LocationID:     loc.ID,
			PredictionDate: base.AddDate(0, 0, i),
			PredictedAQI:   100 + i,
			Category:       "Unhealthy for Sensitive",
			InputFeatures:  json.RawMessage(fmt.Sprintf(`{"pm25":%d}`, i)),
			CreatedAt:      base.AddDate(0, 0, i-1),
		}
		require.NoError(t, repo.AddPrediction(ctx, p))
		assert.NotEmpty(t, p.ID)
	}

	conf := 0.7
	require.NoError(t, repo.AddPrediction(ctx, &store.StoredPrediction{
		LocationID:      loc.ID,
		PredictionDate:  base.AddDate(0, 0, 11),
		PredictedAQI:    42,
		Category:        "Good",
		UsedFallback:    true,
		InputFeatures:   json.RawMessage(`{}`),
		ConfidenceScore: &conf,
		CreatedAt:       base.AddDate(0, 0, 11),
	}))

	predictions, err := repo.ListPredictions(ctx, loc.ID, 0)
	require.NoError(t, err)
	require.Len(t, predictions, store.DefaultPredictionLimit)
	assert.Equal(t, 42, predictions[0].PredictedAQI)
	assert.True(t, predictions[0].UsedFallback)
	require.NotNil(t, predictions[0].ConfidenceScore)
	assert.Equal(t, 111, predictions[1].PredictedAQI)
	assert.JSONEq(t, `{"pm25":11}`, string(predictions[1].InputFeatures))

	err = repo.AddPrediction(ctx, &store.StoredPrediction{LocationID: "missing"})
	assert.ErrorIs(t, err, store.ErrLocationNotFound)
}

func TestObservationFromRecord(t *testing.T) {
	now := time.Date(2025, 3, 14, 23, 59, 0, 0, time.FixedZone("EST", -5*3600))
	rec := &airquality.Record{
		Source:     airquality.SourceOpenAQ,
		Pollutants: airquality.Pollutants{PM25: ptr(12), CO: ptr(0.4)},
		Weather:    airquality.Weather{Humidity: ptr(55)},
		AQI:        50,
	}

	obs := store.ObservationFromRecord("loc-1", rec, now)

	assert.Equal(t, "loc-1", obs.LocationID)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), obs.Date)
	assert.Equal(t, airquality.SourceOpenAQ, obs.Source)
	assert.Equal(t, 12.0, *obs.PM25)
	assert.Equal(t, 55.0, *obs.Humidity)
	assert.Equal(t, 50, obs.AQI)
	assert.Equal(t, time.UTC, obs.RecordedAt.Location())
}

func TestLocation_Near(t *testing.T) {
	loc := store.Location{Latitude: 10, Longitude: 20}

	assert.True(t, loc.Near(10.005, 19.995))
	assert.False(t, loc.Near(10.02, 20))
	assert.False(t, loc.Near(10, 20.02))
}
