package callback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_ResolveSuccess(t *testing.T) {
	registry := NewRegistry(time.Minute)
	token := registry.Register()

	go func() {
		_ = registry.ResolveSuccess(context.Background(), token, map[string]string{"courier": "courier-1"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := registry.Await(ctx, token)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	var out struct {
		Courier string `json:"courier"`
	}
	if err := result.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Courier != "courier-1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if registry.Pending() != 0 {
		t.Fatalf("expected token to be consumed")
	}
}

func TestRegistry_ResolveFailure(t *testing.T) {
	registry := NewRegistry(0)
	token := registry.Register()

	if err := registry.ResolveFailure(context.Background(), token, "NoCourierAvailable", "No couriers are available"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := registry.ResolveSuccess(context.Background(), token, nil); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}

	result, err := registry.Await(context.Background(), token)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.Succeeded() || result.Error != "NoCourierAvailable" || result.Cause != "No couriers are available" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := result.Decode(&struct{}{}); err == nil {
		t.Fatalf("expected decode of failure to error")
	}
}

func TestRegistry_UnknownToken(t *testing.T) {
	registry := NewRegistry(0)

	if _, err := registry.Await(context.Background(), "nope"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	if err := registry.ResolveSuccess(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
}

func TestRegistry_Expires(t *testing.T) {
	registry := NewRegistry(10 * time.Millisecond)
	token := registry.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := registry.Await(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRegistry_AwaitHonorsContext(t *testing.T) {
	registry := NewRegistry(0)
	token := registry.Register()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := registry.Await(ctx, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if registry.Pending() != 1 {
		t.Fatalf("canceled await must not consume the token")
	}
}

func TestRegistry_ExpiredTokensAreDropped(t *testing.T) {
	registry := NewRegistry(10 * time.Millisecond)
	for i := 0; i < 100; i++ {
		registry.Register()
	}
	resolved := registry.Register()
	if err := registry.ResolveSuccess(context.Background(), resolved, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for registry.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected every token dropped after expiry, %d pending", registry.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := registry.ResolveSuccess(context.Background(), resolved, nil); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected dropped token to be unknown, got %v", err)
	}
}
