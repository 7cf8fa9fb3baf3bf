package store

import (
	"context"
	"fmt"
	"sync"

	"booksaga/internal/orders/saga"
)

// MemoryStore is an in-memory RecordStore. Each operation holds the lock for a
// single record update, matching the atomicity of the real stores.
type MemoryStore struct {
	mu        sync.Mutex
	books     map[string]saga.Book
	customers map[string]saga.Customer
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:     make(map[string]saga.Book),
		customers: make(map[string]saga.Customer),
	}
}

// PutBook inserts or replaces a book (for seeding and tests).
func (s *MemoryStore) PutBook(book saga.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.BookID] = book
}

// PutCustomer inserts or replaces a customer (for seeding and tests).
func (s *MemoryStore) PutCustomer(customer saga.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.UserID] = customer
}

func (s *MemoryStore) GetBook(ctx context.Context, bookID string) (saga.Book, error) {
	if err := ctx.Err(); err != nil {
		return saga.Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
	}
	return book, nil
}

// QueryBook is a key-condition query on bookId; the first match is returned.
func (s *MemoryStore) QueryBook(ctx context.Context, bookID string) (saga.Book, error) {
	return s.GetBook(ctx, bookID)
}

func (s *MemoryStore) AddQuantity(ctx context.Context, bookID string, delta int64) (saga.Book, error) {
	if err := ctx.Err(); err != nil {
		return saga.Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
	}
	book.Quantity += delta
	s.books[bookID] = book
	return book, nil
}

func (s *MemoryStore) DecrementIfAvailable(ctx context.Context, bookID string, n int64) (saga.Book, error) {
	if err := ctx.Err(); err != nil {
		return saga.Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
	}
	if book.Quantity-n <= 0 {
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrConditionFailed)
	}
	book.Quantity -= n
	s.books[bookID] = book
	return book, nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, userID string) (saga.Customer, error) {
	if err := ctx.Err(); err != nil {
		return saga.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[userID]
	if !ok {
		return saga.Customer{}, fmt.Errorf("customer %q: %w", userID, saga.ErrNotFound)
	}
	return customer, nil
}

func (s *MemoryStore) ZeroPointsIfEqual(ctx context.Context, userID string, expected int64) (saga.Customer, error) {
	if err := ctx.Err(); err != nil {
		return saga.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[userID]
	if !ok {
		return saga.Customer{}, fmt.Errorf("customer %q: %w", userID, saga.ErrNotFound)
	}
	if customer.Points != expected {
		return saga.Customer{}, fmt.Errorf("customer %q: %w", userID, saga.ErrConditionFailed)
	}
	customer.Points = 0
	s.customers[userID] = customer
	return customer, nil
}

// SetPoints overwrites the balance. A missing customer is created, mirroring
// the upsert semantics of a key-value update.
func (s *MemoryStore) SetPoints(ctx context.Context, userID string, points int64) (saga.Customer, error) {
	if err := ctx.Err(); err != nil {
		return saga.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer := saga.Customer{UserID: userID, Points: points}
	s.customers[userID] = customer
	return customer, nil
}
