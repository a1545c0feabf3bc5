// Package session: retry combinator for the model call.
package session

import (
	"context"
	"log/slog"
	"time"
)

// Retry defaults for the decision call. Only the I/O call is wrapped;
// state mutation happens strictly after a successful attempt, so a retry can
// never re-run a non-idempotent merge.
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// retryConfig describes a bounded exponential backoff.
type retryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// withRetry runs op up to cfg.Attempts times, doubling the delay between
// attempts from cfg.BaseDelay. keepRetrying is consulted after each failure;
// returning false stops immediately (used to avoid re-running a streaming
// call once tokens have already been flushed to the client). Context
// cancellation aborts the wait.
func withRetry(ctx context.Context, cfg retryConfig, keepRetrying func() bool, op func(context.Context) error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts || !keepRetrying() {
			break
		}
		slog.Warn("session.withRetry: attempt failed, backing off",
			"attempt", attempt, "maxAttempts", cfg.Attempts, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
