package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aqforecast/aqforecast/internal/api/models"
)

var errInvalidCoordinates = errors.New("invalid coordinates")

// coordinatesParam reads {lat} and {lon} from the route.
func coordinatesParam(r *http.Request) (models.Coordinates, []models.FieldError, error) {
	var fieldErrors []models.FieldError

	lat, err := parseCoordinate(chi.URLParam(r, "lat"))
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "latitude", Message: "must be a number", Code: "number"})
	}
	lon, err := parseCoordinate(chi.URLParam(r, "lon"))
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "longitude", Message: "must be a number", Code: "number"})
	}
	if len(fieldErrors) > 0 {
		return models.Coordinates{}, fieldErrors, errInvalidCoordinates
	}

	coords := models.Coordinates{Latitude: lat, Longitude: lon}
	if fieldErrors := models.Validate(coords); fieldErrors != nil {
		return models.Coordinates{}, fieldErrors, errInvalidCoordinates
	}
	return coords, nil, nil
}

func parseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errInvalidCoordinates
	}
	return v, nil
}

// limitParam reads ?limit=. Zero means the repository default.
func limitParam(r *http.Request) (int, []models.FieldError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, []models.FieldError{{Field: "limit", Message: "must be an integer", Code: "number"}}
	}
	if fieldErrors := models.Validate(models.ListQuery{Limit: limit}); fieldErrors != nil {
		return 0, fieldErrors
	}
	return limit, nil
}
