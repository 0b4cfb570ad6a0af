// Package convert invokes out-of-process converters: the office suite and the poppler rasteriser.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	// maxStderrLength bounds the converter output carried in errors
	maxStderrLength = 2048

	waitDelay = 2 * time.Second
)

var (
	ErrNoOutput       = errors.New("converter did not produce the expected output")
	ErrBinaryNotFound = errors.New("converter binary not found")
)

// ProcessError reports a converter that exited unsuccessfully
type ProcessError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Binary)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
	}
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Observer receives the outcome of every converter run
type Observer interface {
	ObserveProcess(binary string, duration time.Duration, err error)
}

// Runner executes converter binaries with a shared concurrency cap
type Runner struct {
	logger   *logrus.Logger
	sem      *semaphore.Weighted
	timeout  time.Duration
	observer Observer
}

// NewRunner creates a Runner allowing at most concurrency processes at once.
// A zero timeout leaves processes bound only to the caller's context.
func NewRunner(logger *logrus.Logger, concurrency int, timeout time.Duration, observer Observer) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		timeout:  timeout,
		observer: observer,
	}
}

// Run executes binary with args and waits for it to finish.
// Stdout is discarded; stderr is captured into the returned *ProcessError.
func (r *Runner) Run(ctx context.Context, binary string, args ...string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a converter slot: %w", err)
	}
	defer r.sem.Release(1)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartProcessSpan(ctx, binary, args)

	r.logger.WithFields(logrus.Fields{
		"binary": binary,
		"args":   args,
	}).Debug("Running converter")

	cmd := exec.CommandContext(ctx, binary, args...)
	// Children that inherit the output pipes must not keep Wait blocked after a kill
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		err = r.processError(ctx, binary, err, stderr.String(), stdout.String())
	}

	telemetry.EndSpan(span, err)
	if r.observer != nil {
		r.observer.ObserveProcess(binary, duration, err)
	}

	fields := logrus.Fields{
		"binary":   binary,
		"duration": duration.Round(time.Millisecond).String(),
	}
	if err != nil {
		r.logger.WithFields(fields).WithError(err).Warn("Converter failed")
		return err
	}
	r.logger.WithFields(fields).Debug("Converter finished")
	return nil
}

func (r *Runner) processError(ctx context.Context, binary string, err error, stderr, stdout string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, binary)
	}

	output := strings.TrimSpace(stderr)
	if output == "" {
		output = strings.TrimSpace(stdout)
	}
	if len(output) > maxStderrLength {
		output = output[:maxStderrLength] + "..."
	}

	pe := &ProcessError{Binary: binary, ExitCode: -1, Stderr: output, Err: err}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		pe.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Killed because the request went away or the timeout expired
		pe.Err = errors.Join(ctxErr, err)
	}
	return pe
}

// Check verifies that binary can be resolved
func Check(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, binary)
	}
	return path, nil
}
