package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	fail := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}
	if err := cb.Execute(context.Background(), func() error { return nil }); err != ErrCircuitBreakerOpen {
		t.Fatalf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	}

	time.Sleep(60 * time.Millisecond)

	ok := func() error { return nil }
	if err := cb.Execute(context.Background(), ok); err != nil {
		t.Fatalf("half-open request failed: %v", err)
	}
	if err := cb.Execute(context.Background(), ok); err != nil {
		t.Fatalf("second half-open request failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed state after successes, got %s", cb.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func() error { return nil })
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	if cb.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", cb.State())
	}
}
