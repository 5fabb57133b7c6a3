// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Predictor modes.
const (
	PredictorSubprocess = "subprocess"
	PredictorRemote     = "remote"
	PredictorNone       = "none"
)

// Config holds service configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	OpenAQ    OpenAQConfig    `yaml:"openaq"`
	WAQI      WAQIConfig      `yaml:"waqi"`
	Providers ProvidersConfig `yaml:"providers"`
	Predictor PredictorConfig `yaml:"predictor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Env             string        `yaml:"env" validate:"required"`
	Port            string        `yaml:"port" validate:"required,numeric"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`
}

// OpenAQConfig configures the primary provider.
type OpenAQConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	APIKey  string `yaml:"-"`
	Radius  int    `yaml:"radius" validate:"gt=0"`
}

// WAQIConfig configures the secondary provider. It is skipped without a token.
type WAQIConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Token   string `yaml:"-"`
}

// ProvidersConfig holds settings shared by the providers.
type ProvidersConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// PredictorConfig selects and configures the inference backend.
type PredictorConfig struct {
	Mode    string        `yaml:"mode" validate:"oneof=subprocess remote none"`
	Command string        `yaml:"command" validate:"required_if=Mode subprocess"`
	Script  string        `yaml:"script"`
	Dir     string        `yaml:"dir"`
	URL     string        `yaml:"url" validate:"required_if=Mode remote"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
}

// DatabaseConfig toggles PostgreSQL persistence. Connection settings come
// from the DB_* environment variables.
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled"`
}

// KafkaConfig configures forecast event publication. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// PubSubConfig configures worker triggering. An empty project selects the
// built-in scheduler.
type PubSubConfig struct {
	ProjectID      string `yaml:"project_id"`
	SubscriptionID string `yaml:"subscription_id" validate:"required_with=ProjectID"`
}

// RefreshConfig configures the background refresh job.
type RefreshConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=1,lte=64"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

// AuthConfig configures operator authentication.
type AuthConfig struct {
	JWTSigningKey string `yaml:"-"`
}

// RateLimitConfig holds per-IP request limits per minute.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=1"`
	PredictPerMinute  int `yaml:"predict_per_minute" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Env:             "development",
			Port:            "8080",
			ShutdownTimeout: 30 * time.Second,
		},
		OpenAQ: OpenAQConfig{
			BaseURL: "https://api.openaq.org/v2",
			Radius:  25000,
		},
		WAQI: WAQIConfig{
			BaseURL: "https://api.waqi.info",
		},
		Providers: ProvidersConfig{
			Timeout: 5 * time.Second,
		},
		Predictor: PredictorConfig{
			Mode:    PredictorSubprocess,
			Command: "python3",
			Script:  "ml-model/predict.py",
			Timeout: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
		Kafka: KafkaConfig{
			Topic: "aq-forecasts",
		},
		PubSub: PubSubConfig{
			SubscriptionID: "aq-forecast-worker",
		},
		Refresh: RefreshConfig{
			Interval:    time.Hour,
			Concurrency: 4,
			Timeout:     10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			PredictPerMinute:  20,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE if set, then environment overrides. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.App.Env, "APP_ENV")
	setString(&c.App.Port, "PORT")
	setString(&c.App.Port, "APP_PORT")

	setString(&c.OpenAQ.BaseURL, "OPENAQ_BASE_URL")
	setString(&c.OpenAQ.APIKey, "OPENAQ_API_KEY")
	setString(&c.WAQI.BaseURL, "WAQI_BASE_URL")
	setString(&c.WAQI.Token, "WAQI_API_KEY")
	setString(&c.WAQI.Token, "WAQI_TOKEN")

	setString(&c.Predictor.Mode, "PREDICTOR_MODE")
	setString(&c.Predictor.Command, "PREDICTOR_COMMAND")
	setString(&c.Predictor.Script, "PREDICTOR_SCRIPT")
	setString(&c.Predictor.Dir, "PREDICTOR_DIR")
	setString(&c.Predictor.URL, "PREDICTOR_URL")

	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&c.PubSub.SubscriptionID, "PUBSUB_SUBSCRIPTION_ID")
	setString(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setBool(&c.App.RequireTLS, "REQUIRE_TLS"),
		setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"),
		setBool(&c.Database.Enabled, "DB_ENABLED"),
		setInt(&c.OpenAQ.Radius, "OPENAQ_RADIUS"),
		setInt(&c.Refresh.Concurrency, "REFRESH_CONCURRENCY"),
		setInt(&c.RateLimit.RequestsPerMinute, "RATE_LIMIT_RPM"),
		setInt(&c.RateLimit.PredictPerMinute, "RATE_LIMIT_PREDICT_RPM"),
		setDuration(&c.App.ShutdownTimeout, "APP_SHUTDOWN_TIMEOUT"),
		setDuration(&c.Providers.Timeout, "PROVIDER_TIMEOUT"),
		setDuration(&c.Predictor.Timeout, "PREDICTOR_TIMEOUT"),
		setDuration(&c.Refresh.Interval, "REFRESH_INTERVAL"),
		setDuration(&c.Refresh.Timeout, "REFRESH_TIMEOUT"),
	)
	return errors.Join(errs...)
}

// Validate checks the configuration for inconsistent or missing values.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PredictorArgs returns the arguments preceding the feature payload.
func (p PredictorConfig) PredictorArgs() []string {
	if p.Script == "" {
		return []string{}
	}
	return []string{p.Script}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
