package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"booksaga/internal/observability"
	"booksaga/internal/orders"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubLimiter struct {
	calls int
	err   error
}

func (s *stubLimiter) Wait(ctx context.Context) error {
	s.calls++
	return s.err
}

const stepMethod = "/booksaga.v1.SagaSteps/CheckInventory"

func TestUnaryInterceptor_CallsLimiter(t *testing.T) {
	limiter := &stubLimiter{}
	metrics := observability.NewMetrics()
	interceptor := unaryInterceptor(limiter, metrics, nil)

	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: stepMethod}, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter to be called once, got %d", limiter.calls)
	}
	if got := metrics.Snapshot().Methods[stepMethod].Count; got != 1 {
		t.Fatalf("expected one tracked call, got %d", got)
	}
}

func TestUnaryInterceptor_LimiterErrorSkipsHandler(t *testing.T) {
	limiter := &stubLimiter{err: context.DeadlineExceeded}
	metrics := observability.NewMetrics()
	interceptor := unaryInterceptor(limiter, metrics, nil)

	called := false
	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: stepMethod}, func(ctx context.Context, req any) (any, error) {
		called = true
		return nil, nil
	})
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if called {
		t.Fatalf("handler must not run when the limiter fails")
	}
	if got := metrics.Snapshot().Methods[stepMethod].Errors; got != 1 {
		t.Fatalf("expected one tracked error, got %d", got)
	}
}

func TestUnaryInterceptor_SkipsHealthChecks(t *testing.T) {
	limiter := &stubLimiter{}
	metrics := observability.NewMetrics()
	interceptor := unaryInterceptor(limiter, metrics, nil)

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("down")
	})
	if err == nil {
		t.Fatalf("expected handler error to pass through")
	}
	if limiter.calls != 0 {
		t.Fatalf("health checks must not be throttled")
	}
	if len(metrics.Snapshot().Methods) != 0 {
		t.Fatalf("health checks must not be tracked")
	}
}

func TestRateLimiter_ReportsWaits(t *testing.T) {
	metrics := observability.NewMetrics()
	limiter := orders.NewRateLimiter(50*time.Millisecond, 1).OnWait(metrics.AddRateLimitWait)
	interceptor := unaryInterceptor(limiter, metrics, nil)

	for i := 0; i < 2; i++ {
		if _, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: stepMethod}, func(ctx context.Context, req any) (any, error) {
			return "ok", nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := metrics.Snapshot().RateLimitWaits; got < 1 {
		t.Fatalf("expected the second call to wait, got %d waits", got)
	}
}
