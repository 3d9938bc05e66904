package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterFailures(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("service", Config{
		FailureThreshold: 2,
		Timeout:          10 * time.Second,
		Now:              func() time.Time { return now },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Expected errBoom, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open state, got %s", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("Expected ErrCircuitOpen without calling fn, got %v (called=%v)", err, called)
	}

	now = now.Add(11 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open after timeout, got %s", cb.State())
	}
	if err := cb.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("Expected probe to succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after successful probe, got %s", cb.State())
	}
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	errClient := errors.New("bad request")
	cb := NewCircuitBreaker("service", Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errClient) },
	})

	_ = cb.Execute(context.Background(), func() error { return errClient })
	if cb.State() != StateClosed {
		t.Errorf("Expected filtered errors not to trip the breaker, got %s", cb.State())
	}
	if cb.Counts().TotalSuccesses != 1 {
		t.Errorf("Expected filtered error to count as success, got %+v", cb.Counts())
	}
}

func TestBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("service", Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected cancellation not to trip the breaker, got %s", cb.State())
	}
}
