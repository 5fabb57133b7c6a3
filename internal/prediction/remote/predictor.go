// Package remote calls a predictor exposed over HTTP. The endpoint accepts
// the feature vector as a JSON body and answers with the same JSON shape the
// subprocess predictor prints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/prediction"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

const (
	// ProviderName identifies the remote predictor in the resilience registry.
	ProviderName = "predictor"

	// maxResponseBytes bounds the answer we are willing to read.
	maxResponseBytes = 1 << 20
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the remote predictor.
type Config struct {
	// URL is the full inference endpoint, e.g. http://ml:8000/predict.
	URL string

	// HTTPClient is the HTTP client to use.
	// If nil, a single-attempt resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for a single inference call (default: 30s).
	Timeout time.Duration

	// Registry receives the default client for health reporting.
	Registry *resilience.Registry

	// Logger receives circuit breaker transitions of the default client.
	Logger zerolog.Logger
}

// Predictor implements prediction.Predictor over HTTP.
type Predictor struct {
	url        string
	httpClient HTTPDoer
}

var _ prediction.Predictor = (*Predictor)(nil)

// New creates a remote predictor.
func New(cfg Config) *Predictor {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:     ProviderName,
			Timeout:  timeout,
			Registry: cfg.Registry,
			Logger:   cfg.Logger,
		})
	}

	return &Predictor{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		httpClient: httpClient,
	}
}

// Infer posts the features and parses the answer. No retry is attempted.
func (p *Predictor) Infer(ctx context.Context, features prediction.Features) (*prediction.Inference, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prediction.ErrPredictorFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", prediction.ErrPredictorFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d: %s",
			prediction.ErrPredictorFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return prediction.ParseOutput(body)
}
