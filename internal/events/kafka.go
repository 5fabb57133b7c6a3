package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// DefaultTopic receives forecast events when no topic is configured.
const DefaultTopic = "aq-forecasts"

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish (default: 5s).
	WriteTimeout time.Duration

	Logger zerolog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher produces forecast events to a Kafka topic, keyed by
// location so a location's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a Kafka producer for the configured topic.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		// Each publish is a single synchronous write on the request path.
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(w, cfg.WriteTimeout, cfg.Logger)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, logger zerolog.Logger) *KafkaPublisher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{writer: w, timeout: timeout, logger: logger}
}

// PublishForecast serializes and writes a single event.
func (p *KafkaPublisher) PublishForecast(ctx context.Context, event ForecastCreated) error {
	if event.EventType == "" {
		event.EventType = EventForecastCreated
	}

	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("location_id", event.LocationID).
		Msg("forecast event published")
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a ForecastCreated into a Kafka message.
func serializeToMessage(event ForecastCreated) (kafkago.Message, error) {
	if event.EventType == "" {
		event.EventType = EventForecastCreated
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "created_at", Value: []byte(event.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}

var _ Publisher = (*KafkaPublisher)(nil)
