// Package subprocess runs the predictor as a child process that receives the
// feature vector as its last argument and prints a JSON answer on stdout.
package subprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/prediction"
)

const (
	// DefaultCommand is the interpreter used to run the model script.
	DefaultCommand = "python3"

	// DefaultScript is the model entry point, relative to the working directory.
	DefaultScript = "ml-model/predict.py"

	// DefaultTimeout is the hard limit on a single run.
	DefaultTimeout = 60 * time.Second

	// maxStderr bounds how much stderr is carried into error text.
	maxStderr = 2048

	waitDelay = time.Second
)

// Config holds configuration for the subprocess predictor.
type Config struct {
	// Command is the executable (default: DefaultCommand).
	Command string

	// Args precede the feature JSON (default: [DefaultScript]).
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Timeout kills a run that takes longer (default: DefaultTimeout).
	Timeout time.Duration

	// Logger for predictor operations.
	Logger zerolog.Logger
}

// Predictor implements prediction.Predictor by spawning one process per call.
type Predictor struct {
	command string
	args    []string
	dir     string
	timeout time.Duration
	logger  zerolog.Logger
}

var _ prediction.Predictor = (*Predictor)(nil)

// New creates a subprocess predictor.
func New(cfg Config) *Predictor {
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}

	args := cfg.Args
	if args == nil {
		args = []string{DefaultScript}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Predictor{
		command: command,
		args:    append([]string(nil), args...),
		dir:     cfg.Dir,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Infer runs the predictor and blocks until it exits. Once started, the run
// is not aborted by ctx cancellation; only the configured timeout kills it.
func (p *Predictor) Infer(ctx context.Context, features prediction.Features) (*prediction.Inference, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	args := append(append([]string(nil), p.args...), string(payload))
	cmd := exec.CommandContext(runCtx, p.command, args...)
	cmd.Dir = p.dir
	// Grandchildren holding the output pipes must not outlive the kill.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug().
		Str("command", p.command).
		Int("payload_bytes", len(payload)).
		Msg("running predictor")

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("%w: timed out after %s", prediction.ErrPredictorFailed, p.timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: exit code %d: %s",
				prediction.ErrPredictorFailed, exitErr.ExitCode(), stderrText(&stderr))
		}
		return nil, fmt.Errorf("%w: start %s: %v", prediction.ErrPredictorFailed, p.command, err)
	}

	return prediction.ParseOutput(stdout.Bytes())
}

func stderrText(b *bytes.Buffer) string {
	s := strings.TrimSpace(b.String())
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}
