// Package main provides the entrypoint for the background refresh worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/bootstrap"
	"github.com/aqforecast/aqforecast/internal/config"
	"github.com/aqforecast/aqforecast/internal/telemetry"
	"github.com/aqforecast/aqforecast/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "aqforecast-worker"

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
		Msg("starting forecast refresh worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	stack, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build forecast stack")
		return
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close forecast stack")
		}
	}()

	jobConfig := worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency: cfg.Refresh.Concurrency,
			Timeout:     cfg.Refresh.Timeout,
		},
		Refresher: stack.Service,
		Logger:    log,
	}
	// In-memory locations start empty, so only a database adds targets.
	if stack.Persistent {
		jobConfig.Locations = stack.Service
	}
	job := worker.NewRefreshJob(jobConfig)

	// Cloud Run expects the worker to answer on $PORT.
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      healthRouter(job),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	var stop func()
	if cfg.PubSub.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.SubscriptionID,
			RefreshJob:       job,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			return
		}

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
		stop = func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}
	} else {
		scheduler, err := worker.NewScheduler(job, cfg.Refresh.Interval, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to create scheduler")
			return
		}
		scheduler.Start()
		stop = scheduler.Stop
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func healthRouter(job *worker.RefreshJob) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		m := job.GetMetrics()
		details := map[string]any{
			"version":    Version,
			"total_runs": m.TotalRuns,
			"successful": m.Successful,
			"failed":     m.Failed,
			"fallbacks":  m.Fallbacks,
		}
		if !m.LastRunAt.IsZero() {
			details["last_run_at"] = m.LastRunAt.UTC().Format(time.RFC3339)
			details["last_run_duration"] = m.LastRunDuration.String()
		}

		response.JSON(w, r, http.StatusOK, models.Health{
			Status:  models.HealthStatusOK,
			Time:    models.Timestamp(time.Now()),
			Details: details,
		})
	})
	return r
}
