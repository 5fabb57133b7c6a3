package handler

import (
	"net/http"

	"github.com/aqforecast/aqforecast/internal/api/response"
)

// AirQualityHandler serves current conditions.
type AirQualityHandler struct {
	service ForecastService
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(service ForecastService) *AirQualityHandler {
	return &AirQualityHandler{service: service}
}

// GetCurrent handles GET /api/air-quality/{lat}/{lon}. A record is always
// returned; synthetic readings stand in when every provider fails.
func (h *AirQualityHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	coords, fieldErrors, err := coordinatesParam(r)
	if err != nil {
		response.BadRequest(w, r, "latitude and longitude must be valid coordinates", fieldErrors)
		return
	}

	current := h.service.Current(r.Context(), coords.Latitude, coords.Longitude)
	response.JSON(w, r, http.StatusOK, current)
}
