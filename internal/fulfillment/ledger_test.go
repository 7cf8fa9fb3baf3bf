package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLedger_ClaimOnce(t *testing.T) {
	ledger := NewMemoryLedger(time.Minute)
	ctx := context.Background()

	if ok, err := ledger.Claim(ctx, "tok"); err != nil || !ok {
		t.Fatalf("expected first claim, got %v %v", ok, err)
	}
	if ok, _ := ledger.Claim(ctx, "tok"); ok {
		t.Fatalf("second claim must be refused")
	}
	if _, ok, _ := ledger.Lookup(ctx, "tok"); ok {
		t.Fatalf("claimed token has no outcome yet")
	}

	outcome := Outcome{Token: "tok", Status: StateSucceeded, Courier: "courier-1"}
	if err := ledger.Complete(ctx, outcome); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, ok, err := ledger.Lookup(ctx, "tok")
	if err != nil || !ok || got != outcome {
		t.Fatalf("unexpected lookup: %+v %v %v", got, ok, err)
	}
}

func TestMemoryLedger_ForgetsAfterTTL(t *testing.T) {
	ledger := NewMemoryLedger(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = ledger.Claim(ctx, "old")
	now = now.Add(2 * time.Minute)
	if ok, _ := ledger.Claim(ctx, "new"); !ok {
		t.Fatalf("expected claim")
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected expired token swept, have %d", ledger.Len())
	}
	if ok, _ := ledger.Claim(ctx, "old"); !ok {
		t.Fatalf("expired token can be claimed again")
	}
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ledger := NewRedisLedger(client, time.Hour)
	ctx := context.Background()

	if ok, err := ledger.Claim(ctx, "tok"); err != nil || !ok {
		t.Fatalf("expected first claim, got %v %v", ok, err)
	}
	if ok, err := ledger.Claim(ctx, "tok"); err != nil || ok {
		t.Fatalf("second claim must be refused, got %v %v", ok, err)
	}
	if _, ok, err := ledger.Lookup(ctx, "tok"); err != nil || ok {
		t.Fatalf("claimed token has no outcome yet, got %v %v", ok, err)
	}
	if _, ok, err := ledger.Lookup(ctx, "never"); err != nil || ok {
		t.Fatalf("unknown token, got %v %v", ok, err)
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	outcome := Outcome{Token: "tok", BookID: "b1", Quantity: 2, Status: StateFailed, Error: FailureCode, At: at}
	if err := ledger.Complete(ctx, outcome); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, ok, err := ledger.Lookup(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("lookup: %v %v", ok, err)
	}
	if got.Status != StateFailed || got.Error != FailureCode || !got.At.Equal(at) {
		t.Fatalf("unexpected outcome: %+v", got)
	}
	if ttl := mr.TTL("fulfillment:done:tok"); ttl != time.Hour {
		t.Fatalf("expected ttl on processed token, got %v", ttl)
	}
}
