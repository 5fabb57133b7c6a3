package bootstrap_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/bootstrap"
	"github.com/aqforecast/aqforecast/internal/config"
	"github.com/aqforecast/aqforecast/internal/events"
	"github.com/aqforecast/aqforecast/internal/prediction/remote"
	"github.com/aqforecast/aqforecast/internal/prediction/subprocess"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

func TestPredictor_Modes(t *testing.T) {
	registry := resilience.NewRegistry()
	logger := zerolog.Nop()

	p, name := bootstrap.Predictor(config.PredictorConfig{Mode: config.PredictorSubprocess, Command: "python3"}, registry, logger)
	assert.IsType(t, &subprocess.Predictor{}, p)
	assert.Equal(t, "subprocess", name)

	p, name = bootstrap.Predictor(config.PredictorConfig{Mode: config.PredictorRemote, URL: "http://ml:8000/predict"}, registry, logger)
	assert.IsType(t, &remote.Predictor{}, p)
	assert.Equal(t, "remote", name)
	assert.NotNil(t, registry.GetHealth(remote.ProviderName))

	p, name = bootstrap.Predictor(config.PredictorConfig{Mode: config.PredictorNone}, registry, logger)
	assert.Nil(t, p)
	assert.Equal(t, "none", name)
}

func TestProviders_WAQIRequiresToken(t *testing.T) {
	cfg := config.Default()
	registry := resilience.NewRegistry()

	assert.Len(t, bootstrap.Providers(cfg, registry, zerolog.Nop()), 1)

	cfg.WAQI.Token = "demo"
	assert.Len(t, bootstrap.Providers(cfg, registry, zerolog.Nop()), 2)
}

func TestPublisher_NopWithoutBrokers(t *testing.T) {
	pub := bootstrap.Publisher(config.KafkaConfig{Topic: "aq-forecasts"}, zerolog.Nop())
	assert.IsType(t, events.NopPublisher{}, pub)

	pub = bootstrap.Publisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "aq-forecasts"}, zerolog.Nop())
	assert.IsType(t, &events.KafkaPublisher{}, pub)
	require.NoError(t, pub.Close())
}

func TestBuild_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Predictor.Mode = config.PredictorNone

	stack, err := bootstrap.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stack.Close()

	assert.NotNil(t, stack.Service)
	assert.Nil(t, stack.Pool)
	assert.False(t, stack.Persistent)

	locations, err := stack.Service.Locations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locations)
}
