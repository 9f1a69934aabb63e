package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"treasury-reconciler/pkg/logger"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = stderrors.New("max retries exceeded")

// RetryOptions configures exponential backoff around collaborator calls
type RetryOptions struct {
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" mapstructure:"max_delay"`
	Multiplier   float64       `json:"multiplier" mapstructure:"multiplier"`
}

// DefaultRetryOptions returns three attempts starting at 500ms
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// PermanentError marks a failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// withRetry runs operation until it succeeds, returns a permanent error,
// exhausts its attempts or ctx ends.
func withRetry(ctx context.Context, opts RetryOptions, log logger.Logger, operation func() error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		log.WithFields(logger.Fields{
			"attempt":      attempt,
			"max_attempts": opts.MaxAttempts,
			"delay":        delay.String(),
		}).WithError(err).Warn("Collaborator call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}

func isRetryable(err error) bool {
	var permanent *PermanentError
	if stderrors.As(err, &permanent) {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
