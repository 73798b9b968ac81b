// Package retry provides utilities for polling operations at a fixed interval.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds polling configuration.
type Config struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration

	// MaxAttempts bounds the number of attempts. Zero means unbounded:
	// the operation is retried until it succeeds or the context is
	// cancelled.
	MaxAttempts int
}

// Option is a functional option for polling configuration.
type Option func(*Config)

// ErrBudgetExhausted is returned (wrapped) when a bounded poll runs out of
// attempts without the operation succeeding.
var ErrBudgetExhausted = errors.New("attempt budget exhausted")

// Poll executes the operation at a fixed interval until it succeeds.
// The interval between attempts is constant; there is no backoff growth.
// Context cancellation is respected during every sleep.
//
// Errors wrapped with Fatal() are not retried.
func Poll(ctx context.Context, operation func() error, opts ...Option) error {
	cfg := &Config{
		Interval:    time.Second,
		MaxAttempts: 0,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if IsFatal(err) {
			return fmt.Errorf("fatal error (not retrying): %w", err)
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(cfg.Interval):
		}
	}
}

// WithInterval sets the fixed delay between attempts.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithMaxAttempts sets the attempt budget. Zero means unbounded.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable).
// Operations that encounter fatal errors will not be retried.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
