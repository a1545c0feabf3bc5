package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), retryConfig{Attempts: 3, BaseDelay: time.Millisecond},
		func() bool { return true },
		func(context.Context) error { calls++; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := withRetry(context.Background(), retryConfig{Attempts: 3, BaseDelay: time.Millisecond},
		func() bool { return true },
		func(context.Context) error { calls++; return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsWhenPredicateFalse(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), retryConfig{Attempts: 5, BaseDelay: time.Millisecond},
		func() bool { return false },
		func(context.Context) error { calls++; return errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("predicate must stop retries after the first failure, got %d calls", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, retryConfig{Attempts: 3, BaseDelay: time.Hour},
		func() bool { return true },
		func(context.Context) error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
