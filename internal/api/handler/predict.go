package handler

import (
	"net/http"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
)

// PredictHandler serves next-day forecasts.
type PredictHandler struct {
	service ForecastService
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler(service ForecastService) *PredictHandler {
	return &PredictHandler{service: service}
}

// Predict handles POST /api/predict. Inference failures still answer 200
// with a fallback estimate and success=false.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if fieldErrors := models.Validate(req); fieldErrors != nil {
		response.BadRequest(w, r, "latitude and longitude are required", fieldErrors)
		return
	}

	forecast := h.service.Predict(r.Context(), *req.Latitude, *req.Longitude, req.CurrentData)
	response.JSON(w, r, http.StatusOK, forecast)
}
