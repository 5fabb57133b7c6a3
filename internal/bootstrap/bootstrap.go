// Package bootstrap assembles the forecast stack from configuration. Both
// binaries share it so the API and the worker resolve, predict and persist
// the same way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/airquality/openaq"
	"github.com/aqforecast/aqforecast/internal/airquality/waqi"
	"github.com/aqforecast/aqforecast/internal/config"
	"github.com/aqforecast/aqforecast/internal/database"
	"github.com/aqforecast/aqforecast/internal/events"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/prediction"
	"github.com/aqforecast/aqforecast/internal/prediction/remote"
	"github.com/aqforecast/aqforecast/internal/prediction/subprocess"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/store"
	"github.com/aqforecast/aqforecast/internal/telemetry"
)

// Stack is the assembled forecast pipeline and the resources behind it.
type Stack struct {
	Service  *forecast.Service
	Registry *resilience.Registry

	// Pool is nil when persistence is disabled.
	Pool *pgxpool.Pool

	// Persistent reports whether locations survive a restart.
	Persistent bool

	publisher events.Publisher
}

// Build wires providers, predictor, repository and publisher per cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stack, error) {
	registry := resilience.NewRegistry()

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return nil, fmt.Errorf("provider metrics: %w", err)
	}
	inferenceMetrics, err := telemetry.NewInferenceMetrics()
	if err != nil {
		return nil, fmt.Errorf("inference metrics: %w", err)
	}

	resolver := airquality.NewResolver(airquality.ResolverConfig{
		Providers:       Providers(cfg, registry, logger),
		Logger:          logger,
		ProviderTimeout: cfg.Providers.Timeout,
		Metrics:         providerMetrics,
		Health:          registry,
	})

	predictor, predictorName := Predictor(cfg.Predictor, registry, logger)
	bridge := prediction.NewBridge(prediction.BridgeConfig{
		Predictor:     predictor,
		PredictorName: predictorName,
		Logger:        logger,
		Metrics:       inferenceMetrics,
	})

	stack := &Stack{Registry: registry}

	var repo store.Repository
	if cfg.Database.Enabled {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}

		pgRepo := store.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}

		logger.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")

		repo = pgRepo
		stack.Pool = pool
		stack.Persistent = true
	} else {
		logger.Warn().Msg("database disabled, keeping locations in memory")
		repo = store.NewInMemoryRepository()
	}

	stack.publisher = Publisher(cfg.Kafka, logger)

	stack.Service = forecast.NewService(forecast.ServiceConfig{
		Resolver:   resolver,
		Forecaster: bridge,
		Repository: repo,
		Publisher:  stack.publisher,
		Logger:     logger,
	})
	return stack, nil
}

// Close releases the publisher and the database pool.
func (s *Stack) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return errors.Join(errs...)
}

// Providers returns the upstream providers in priority order. WAQI is only
// consulted when a token is configured.
func Providers(cfg *config.Config, registry *resilience.Registry, logger zerolog.Logger) []airquality.Provider {
	providers := []airquality.Provider{
		openaq.NewClient(openaq.ClientConfig{
			BaseURL:  cfg.OpenAQ.BaseURL,
			APIKey:   cfg.OpenAQ.APIKey,
			Radius:   cfg.OpenAQ.Radius,
			Timeout:  cfg.Providers.Timeout,
			Registry: registry,
			Logger:   logger,
		}),
	}

	if cfg.WAQI.Token != "" {
		providers = append(providers, waqi.NewClient(waqi.ClientConfig{
			BaseURL:  cfg.WAQI.BaseURL,
			Token:    cfg.WAQI.Token,
			Timeout:  cfg.Providers.Timeout,
			Registry: registry,
			Logger:   logger,
		}))
	} else {
		logger.Warn().Msg("WAQI token not set, secondary provider disabled")
	}
	return providers
}

// Predictor builds the inference backend for the configured mode and
// returns it with its metrics label. Mode "none" yields a nil predictor,
// so every forecast uses the fallback estimate.
func Predictor(cfg config.PredictorConfig, registry *resilience.Registry, logger zerolog.Logger) (prediction.Predictor, string) {
	switch cfg.Mode {
	case config.PredictorSubprocess:
		return subprocess.New(subprocess.Config{
			Command: cfg.Command,
			Args:    cfg.PredictorArgs(),
			Dir:     cfg.Dir,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}), config.PredictorSubprocess
	case config.PredictorRemote:
		return remote.New(remote.Config{
			URL:      cfg.URL,
			Timeout:  cfg.Timeout,
			Registry: registry,
			Logger:   logger,
		}), config.PredictorRemote
	default:
		logger.Warn().Msg("no predictor configured, forecasts use the fallback estimate")
		return nil, config.PredictorNone
	}
}

// Publisher returns a Kafka publisher when brokers are configured.
func Publisher(cfg config.KafkaConfig, logger zerolog.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NopPublisher{}
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("publishing forecast events to kafka")

	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		Logger:  logger,
	})
}
