package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

// ProviderHealthSource reports upstream health.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// Pinger checks a subsystem's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// pingTimeout bounds each subsystem check.
const pingTimeout = 2 * time.Second

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Providers is optional; without it no providers are listed.
	Providers ProviderHealthSource

	// Subsystems are pinged by SystemStatus, keyed by name.
	Subsystems map[string]Pinger

	Clock clockwork.Clock
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	providers  ProviderHealthSource
	subsystems map[string]Pinger
	clock      clockwork.Clock
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		providers:  cfg.Providers,
		subsystems: cfg.Subsystems,
		clock:      clock,
	}
}

// HealthCheck handles GET /api/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /api/ops/status. Open circuits degrade the
// overall status; a failing subsystem fails it.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.clock.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	for _, name := range slices.Sorted(maps.Keys(h.subsystems)) {
		pinger := h.subsystems[name]
		sub := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		if err := pinger.Ping(ctx); err != nil {
			sub.Status = models.HealthStatusFail
			sub.Detail = err.Error()
			status.Status = models.HealthStatusFail
		}
		cancel()
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			ps := providerStatus(ph)
			if ps.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     ph.Name,
		Status:       models.HealthStatusOK,
		CircuitState: ph.CircuitState.String(),
		Requests:     ph.Counts.Requests,
		Failures:     ph.Counts.TotalFailures,
		Message:      ph.LastError,
	}

	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}

	if ph.LastSuccessAt != nil {
		ts := models.Timestamp(*ph.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if ph.LastFailureAt != nil {
		ts := models.Timestamp(*ph.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	return ps
}
