// Package main provides the entrypoint for the air quality forecast API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api"
	"github.com/aqforecast/aqforecast/internal/api/handler"
	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/auth"
	"github.com/aqforecast/aqforecast/internal/bootstrap"
	"github.com/aqforecast/aqforecast/internal/config"
	"github.com/aqforecast/aqforecast/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "aqforecast-api"

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting air quality forecast API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	stack, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build forecast stack")
		os.Exit(1)
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close forecast stack")
		}
	}()

	subsystems := map[string]handler.Pinger{}
	if stack.Pool != nil {
		subsystems["database"] = stack.Pool
	}

	var validator middleware.TokenValidator
	if cfg.Auth.JWTSigningKey != "" {
		validator = auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.Auth.JWTSigningKey,
		})
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set, ops endpoints disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		Metrics:           metrics,
		Service:           stack.Service,
		Providers:         stack.Registry,
		Subsystems:        subsystems,
		TokenValidator:    validator,
		RequireTLS:        cfg.App.RequireTLS,
		StandardRateLimit: middleware.PerMinute(cfg.RateLimit.RequestsPerMinute),
		PredictRateLimit:  middleware.PerMinute(cfg.RateLimit.PredictPerMinute),
	})

	// Predictions may wait on a slow model run.
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Predictor.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
