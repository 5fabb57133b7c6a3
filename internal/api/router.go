// Package api provides the HTTP API for the forecast service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api/handler"
	"github.com/aqforecast/aqforecast/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// Service answers the public endpoints.
	Service handler.ForecastService

	// Providers and Subsystems feed /api/ops/status.
	Providers  handler.ProviderHealthSource
	Subsystems map[string]handler.Pinger

	// TokenValidator guards the ops endpoints. Without it they are not mounted.
	TokenValidator middleware.TokenValidator

	RequireTLS bool

	// Zero values select middleware.StandardRateLimit and PredictRateLimit.
	StandardRateLimit middleware.RateLimitConfig
	PredictRateLimit  middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP) // Before the IP rate limiters
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	standard := cfg.StandardRateLimit
	if standard.RequestLimit == 0 {
		standard = middleware.StandardRateLimit
	}
	predict := cfg.PredictRateLimit
	if predict.RequestLimit == 0 {
		predict = middleware.PredictRateLimit
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Providers:  cfg.Providers,
		Subsystems: cfg.Subsystems,
	})
	airQualityHandler := handler.NewAirQualityHandler(cfg.Service)
	predictHandler := handler.NewPredictHandler(cfg.Service)
	locationHandler := handler.NewLocationHandler(cfg.Service, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)

		if cfg.TokenValidator != nil {
			r.With(
				middleware.Auth(cfg.TokenValidator),
				middleware.RateLimitByOperator(standard),
			).Get("/ops/status", opsHandler.SystemStatus)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(standard))
			r.Use(middleware.RequireJSON)

			r.Get("/air-quality/{lat}/{lon}", airQualityHandler.GetCurrent)

			r.Route("/locations", func(r chi.Router) {
				r.Get("/", locationHandler.ListLocations)
				r.Post("/", locationHandler.CreateLocation)
				r.Get("/{id}/history", locationHandler.GetHistory)
				r.Get("/{id}/predictions", locationHandler.GetPredictions)
			})
		})

		// Each prediction may start a model run.
		r.With(
			middleware.RateLimitByIP(predict),
			middleware.RequireJSON,
		).Post("/predict", predictHandler.Predict)
	})

	return r
}
