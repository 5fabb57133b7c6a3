package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried in trigger messages.
const (
	JobForecastRefresh = "forecast_refresh"
	JobHealthCheck     = "health_check"
)

// PubSubHandler triggers refresh runs from Pub/Sub messages.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// RefreshMessage is the trigger payload. Targets, when present, replace
// the configured set for a forecast_refresh run.
type RefreshMessage struct {
	JobType string   `json:"job_type"`
	Targets []Target `json:"targets,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A full refresh may take several predictor runs per target.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.RefreshJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.dispatcher.Handle(logger.WithContext(ctx), msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher decodes trigger payloads and runs the matching job.
type Dispatcher struct {
	job    *RefreshJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for job.
func NewDispatcher(job *RefreshJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Handle runs the job named in data and reports whether the message should
// be acknowledged. Malformed and unknown messages are acknowledged so they
// are not redelivered.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) bool {
	logger := d.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	var err error
	switch msg.JobType {
	case JobForecastRefresh:
		err = d.refresh(ctx, msg.Targets)
	case JobHealthCheck:
		err = d.healthCheck(ctx)
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	}

	if err != nil {
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return false
	}

	logger.Info().Str("job_type", msg.JobType).Msg("job completed successfully")
	return true
}

func (d *Dispatcher) refresh(ctx context.Context, targets []Target) error {
	var result *RefreshResult
	if len(targets) > 0 {
		result = d.job.RunTargets(ctx, targets)
	} else {
		result = d.job.Run(ctx)
	}

	// Redeliver only when most targets failed.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

// healthCheck refreshes the first configured target only.
func (d *Dispatcher) healthCheck(ctx context.Context) error {
	result := d.job.RunTargets(ctx, d.job.config.Targets[:1])
	switch {
	case len(result.Errors) > 0:
		return fmt.Errorf("health check failed: %s", result.Errors[0].Error)
	case result.Failed > 0:
		return fmt.Errorf("health check did not complete: %w", context.Cause(ctx))
	}
	return nil
}
