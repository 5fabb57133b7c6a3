package prediction

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aqforecast/aqforecast/internal/airquality"
	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/telemetry"
)

// BridgeConfig holds configuration for the inference bridge.
type BridgeConfig struct {
	// Predictor runs the model. A nil predictor always falls back.
	Predictor Predictor

	// PredictorName labels metrics and logs (default: "predictor").
	PredictorName string

	// Logger for bridge operations.
	Logger zerolog.Logger

	// Rand drives fallback jitter (default: aqi.DefaultRand).
	Rand aqi.RandFunc

	// Clock times inference calls (default: real clock).
	Clock clockwork.Clock

	// Metrics is optional.
	Metrics *telemetry.InferenceMetrics
}

// Bridge runs one inference per request and degrades to FallbackAQI when
// the predictor fails. It is safe for concurrent use.
type Bridge struct {
	predictor Predictor
	name      string
	logger    zerolog.Logger
	rnd       aqi.RandFunc
	clock     clockwork.Clock
	metrics   *telemetry.InferenceMetrics
}

// NewBridge creates a new inference bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	name := cfg.PredictorName
	if name == "" {
		name = "predictor"
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = aqi.DefaultRand
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Bridge{
		predictor: cfg.Predictor,
		name:      name,
		logger:    cfg.Logger,
		rnd:       rnd,
		clock:     clock,
		metrics:   cfg.Metrics,
	}
}

// Predict forecasts tomorrow's AQI for rec. It never fails: predictor
// errors produce a fallback result with Success=false and ErrorDetail set.
func (b *Bridge) Predict(ctx context.Context, rec *airquality.Record) *Result {
	if rec == nil {
		rec = &airquality.Record{}
	}

	features := BuildFeatures(rec)

	ctx, span := telemetry.StartSpan(ctx, "prediction.Predict",
		attribute.String("predictor.name", b.name),
	)
	start := b.clock.Now()

	inference, err := b.infer(ctx, features)

	var result *Result
	if err != nil {
		b.logger.Warn().
			Err(err).
			Str("predictor", b.name).
			Msg("inference failed, using fallback estimate")
		result = b.fallback(rec, features, err)
	} else {
		result = fromInference(inference, features)
	}

	b.metrics.RecordInference(ctx, b.name, result.UsedFallback, b.clock.Since(start))
	span.SetAttributes(
		attribute.Bool("prediction.fallback", result.UsedFallback),
		attribute.Int("prediction.aqi", result.PredictedAQI),
	)
	telemetry.EndSpan(span, err)

	return result
}

// infer runs the predictor once, converting panics into errors.
func (b *Bridge) infer(ctx context.Context, features Features) (inf *Inference, err error) {
	if b.predictor == nil {
		return nil, ErrNoPredictor
	}

	defer func() {
		if r := recover(); r != nil {
			inf, err = nil, fmt.Errorf("%w: panic: %v", ErrPredictorFailed, r)
		}
	}()

	inf, err = b.predictor.Infer(ctx, features)
	switch {
	case err != nil:
		return nil, err
	case inf == nil:
		return nil, fmt.Errorf("%w: empty inference", ErrInvalidOutput)
	}

	if verr := checkPredictedAQI(inf.PredictedAQI); verr != nil {
		return nil, verr
	}
	return inf, nil
}

func fromInference(inf *Inference, features Features) *Result {
	predicted := aqi.Round(inf.PredictedAQI)
	category := aqi.Categorize(predicted)

	name := inf.Category
	if name == "" {
		name = category.Name
	}

	return &Result{
		Success:       true,
		PredictedAQI:  predicted,
		Category:      name,
		Emoji:         category.Emoji,
		SeverityColor: category.Color,
		Confidence:    inf.Confidence,
		InputFeatures: features,
	}
}

func (b *Bridge) fallback(rec *airquality.Record, features Features, cause error) *Result {
	predicted := FallbackAQI(rec, b.rnd)
	category := aqi.Categorize(predicted)

	return &Result{
		Success:       false,
		PredictedAQI:  predicted,
		Category:      category.Name,
		Emoji:         category.Emoji,
		SeverityColor: category.Color,
		UsedFallback:  true,
		ErrorDetail:   cause.Error(),
		InputFeatures: features,
	}
}
