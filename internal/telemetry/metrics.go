package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProviderMetrics records upstream air quality provider calls.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	syntheticTotal  metric.Int64Counter
}

// NewProviderMetrics creates the provider instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := Meter()

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	syntheticTotal, err := meter.Int64Counter(
		"provider.synthetic.total",
		metric.WithDescription("Number of resolutions answered by the synthetic generator"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		syntheticTotal:  syntheticTotal,
	}, nil
}

// RecordRequest records one provider call. outcome is "data", "no_data" or "error".
func (m *ProviderMetrics) RecordRequest(ctx context.Context, provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.outcome", outcome),
	)
	// Detach from request cancellation so late calls still get recorded.
	ctx = context.WithoutCancel(ctx)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
	m.requestTotal.Add(ctx, 1, attrs)
}

// RecordSynthetic counts a resolution that fell through every provider.
func (m *ProviderMetrics) RecordSynthetic(ctx context.Context) {
	if m == nil {
		return
	}
	m.syntheticTotal.Add(context.WithoutCancel(ctx), 1)
}

// InferenceMetrics records predictor invocations.
type InferenceMetrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// NewInferenceMetrics creates the inference instruments on the global meter.
func NewInferenceMetrics() (*InferenceMetrics, error) {
	meter := Meter()

	duration, err := meter.Float64Histogram(
		"inference.duration",
		metric.WithDescription("Duration of predictor invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	total, err := meter.Int64Counter(
		"inference.total",
		metric.WithDescription("Total number of predictions served"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, err
	}

	return &InferenceMetrics{duration: duration, total: total}, nil
}

// RecordInference records one prediction and whether the fallback answered it.
func (m *InferenceMetrics) RecordInference(ctx context.Context, predictor string, usedFallback bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("predictor.name", predictor),
		attribute.Bool("fallback", usedFallback),
	)
	ctx = context.WithoutCancel(ctx)
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.total.Add(ctx, 1, attrs)
}
