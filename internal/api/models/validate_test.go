package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/api/models"
)

func f(v float64) *float64 { return &v }

func TestValidate_PredictRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    models.PredictRequest
		fields []string
	}{
		{"valid", models.PredictRequest{Latitude: f(40.7), Longitude: f(-74)}, nil},
		{"zero is a coordinate", models.PredictRequest{Latitude: f(0), Longitude: f(0)}, nil},
		{"missing both", models.PredictRequest{}, []string{"latitude", "longitude"}},
		{"latitude too high", models.PredictRequest{Latitude: f(90.1), Longitude: f(0)}, []string{"latitude"}},
		{"longitude too low", models.PredictRequest{Latitude: f(0), Longitude: f(-180.5)}, []string{"longitude"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := models.Validate(tt.req)
			if tt.fields == nil {
				assert.Nil(t, errs)
				return
			}
			require.Len(t, errs, len(tt.fields))
			for i, field := range tt.fields {
				assert.Equal(t, field, errs[i].Field)
				assert.NotEmpty(t, errs[i].Message)
			}
		})
	}
}

func TestValidate_CreateLocationRequest(t *testing.T) {
	errs := models.Validate(models.CreateLocationRequest{Latitude: f(10), Longitude: f(10)})
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field)
	assert.Equal(t, "required", errs[0].Code)
	assert.Equal(t, "is required", errs[0].Message)
}

func TestValidate_Coordinates(t *testing.T) {
	assert.Nil(t, models.Validate(models.Coordinates{Latitude: -90, Longitude: 180}))

	errs := models.Validate(models.Coordinates{Latitude: -91, Longitude: 0})
	require.Len(t, errs, 1)
	assert.Equal(t, "must be at least -90", errs[0].Message)
}

func TestNewListResponse(t *testing.T) {
	resp := models.NewListResponse[string](nil)
	assert.NotNil(t, resp.Items)
	assert.Equal(t, 0, resp.Count)

	resp = models.NewListResponse([]string{"a", "b"})
	assert.Equal(t, 2, resp.Count)
}
