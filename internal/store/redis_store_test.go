package store

import (
	"context"
	"errors"
	"testing"

	"booksaga/internal/orders/saga"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisStore(client), mr
}

func TestRedisStore_GetBook(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.PutBook(ctx, saga.Book{BookID: "b1", Quantity: 10, Price: 12.5}); err != nil {
		t.Fatalf("put: %v", err)
	}

	book, err := store.QueryBook(ctx, "b1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if book.Quantity != 10 || book.Price != 12.5 {
		t.Fatalf("unexpected book: %+v", book)
	}

	if _, err := store.GetBook(ctx, "missing"); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedisStore_AddQuantity(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.PutBook(ctx, saga.Book{BookID: "b1", Quantity: 4, Price: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	book, err := store.AddQuantity(ctx, "b1", 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if book.Quantity != 7 || book.Price != 3 {
		t.Fatalf("unexpected book: %+v", book)
	}
	if got := mr.HGet("book:b1", "quantity"); got != "7" {
		t.Fatalf("expected stored quantity 7, got %q", got)
	}

	if _, err := store.AddQuantity(ctx, "missing", 1); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("book:missing") {
		t.Fatalf("missing book must not be created")
	}
}

func TestRedisStore_DecrementIfAvailable(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.PutBook(ctx, saga.Book{BookID: "b1", Quantity: 5, Price: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	book, err := store.DecrementIfAvailable(ctx, "b1", 3)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if book.Quantity != 2 {
		t.Fatalf("expected 2 left, got %d", book.Quantity)
	}

	if _, err := store.DecrementIfAvailable(ctx, "b1", 2); !errors.Is(err, saga.ErrConditionFailed) {
		t.Fatalf("expected condition failure, got %v", err)
	}
	book, _ = store.GetBook(ctx, "b1")
	if book.Quantity != 2 {
		t.Fatalf("refused decrement must not mutate, got %d", book.Quantity)
	}
}

func TestRedisStore_CustomerPoints(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.SetPoints(ctx, "u1", 50); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.ZeroPointsIfEqual(ctx, "u1", 49); !errors.Is(err, saga.ErrConditionFailed) {
		t.Fatalf("expected condition failure, got %v", err)
	}
	if _, err := store.ZeroPointsIfEqual(ctx, "u1", 50); err != nil {
		t.Fatalf("zero: %v", err)
	}
	customer, err := store.GetCustomer(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if customer.Points != 0 {
		t.Fatalf("expected 0 points, got %d", customer.Points)
	}
	if _, err := store.ZeroPointsIfEqual(ctx, "ghost", 0); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
