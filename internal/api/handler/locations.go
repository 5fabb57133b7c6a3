package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/store"
)

// LocationHandler serves monitored locations and their history.
type LocationHandler struct {
	service ForecastService
	logger  zerolog.Logger
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(service ForecastService, logger zerolog.Logger) *LocationHandler {
	return &LocationHandler{service: service, logger: logger}
}

// ListLocations handles GET /api/locations.
func (h *LocationHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.Locations(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list locations")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewListResponse(locations))
}

// CreateLocation handles POST /api/locations. An existing location within
// the near tolerance is returned with 200 instead of 201.
func (h *LocationHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLocationRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if fieldErrors := models.Validate(req); fieldErrors != nil {
		response.BadRequest(w, r, "invalid location", fieldErrors)
		return
	}

	loc, created, err := h.service.AddLocation(r.Context(), &store.Location{
		Name:      req.Name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Country:   req.Country,
	})
	if err != nil {
		h.writeError(w, r, err, "add location")
		return
	}

	if !created {
		response.JSON(w, r, http.StatusOK, loc)
		return
	}
	response.Created(w, r, "/api/locations/"+loc.ID, loc)
}

// GetHistory handles GET /api/locations/{id}/history.
func (h *LocationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, fieldErrors := limitParam(r)
	if fieldErrors != nil {
		response.BadRequest(w, r, "invalid limit", fieldErrors)
		return
	}

	observations, err := h.service.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, r, err, "list observations")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewListResponse(observations))
}

// GetPredictions handles GET /api/locations/{id}/predictions.
func (h *LocationHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	limit, fieldErrors := limitParam(r)
	if fieldErrors != nil {
		response.BadRequest(w, r, "invalid limit", fieldErrors)
		return
	}

	predictions, err := h.service.Predictions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, r, err, "list predictions")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewListResponse(predictions))
}

func (h *LocationHandler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, store.ErrLocationNotFound):
		response.NotFound(w, r, "location not found")
	case errors.Is(err, forecast.ErrStorageDisabled):
		response.ServiceUnavailable(w, r, "location storage is not configured")
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("location request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
