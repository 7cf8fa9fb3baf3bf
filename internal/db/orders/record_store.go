package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booksaga/internal/orders/saga"
)

// PostgresRecordStore keeps books and customers in Postgres. Every mutation is
// a single UPDATE ... RETURNING on one row.
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore constructs a RecordStore backed by Postgres.
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// NewPostgresRecordStoreWithSchema initializes the schema then returns the store.
func NewPostgresRecordStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresRecordStore, error) {
	store := NewPostgresRecordStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the books and customers tables if they do not exist.
func (s *PostgresRecordStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			book_id TEXT PRIMARY KEY,
			quantity BIGINT NOT NULL CHECK (quantity >= 0),
			price DOUBLE PRECISION NOT NULL CHECK (price >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			user_id TEXT PRIMARY KEY,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresRecordStore) GetBook(ctx context.Context, bookID string) (saga.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT book_id, quantity, price
		FROM books
		WHERE book_id = $1`,
		bookID,
	)
	return scanBook(row, bookID)
}

// QueryBook runs a key-condition query and returns the first item.
func (s *PostgresRecordStore) QueryBook(ctx context.Context, bookID string) (saga.Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT book_id, quantity, price
		FROM books
		WHERE book_id = $1
		LIMIT 1`,
		bookID,
	)
	if err != nil {
		return saga.Book{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return saga.Book{}, err
		}
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
	}
	var book saga.Book
	if err := rows.Scan(&book.BookID, &book.Quantity, &book.Price); err != nil {
		return saga.Book{}, err
	}
	return book, rows.Err()
}

func (s *PostgresRecordStore) AddQuantity(ctx context.Context, bookID string, delta int64) (saga.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE books
		SET quantity = quantity + $2
		WHERE book_id = $1
		RETURNING book_id, quantity, price`,
		bookID, delta,
	)
	return scanBook(row, bookID)
}

func (s *PostgresRecordStore) DecrementIfAvailable(ctx context.Context, bookID string, n int64) (saga.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE books
		SET quantity = quantity - $2
		WHERE book_id = $1 AND quantity - $2 > 0
		RETURNING book_id, quantity, price`,
		bookID, n,
	)
	book, err := scanBook(row, bookID)
	if !errors.Is(err, saga.ErrNotFound) {
		return book, err
	}
	return saga.Book{}, s.explainMiss(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE book_id = $1)`, "book", bookID)
}

func (s *PostgresRecordStore) GetCustomer(ctx context.Context, userID string) (saga.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, points
		FROM customers
		WHERE user_id = $1`,
		userID,
	)
	return scanCustomer(row, userID)
}

func (s *PostgresRecordStore) ZeroPointsIfEqual(ctx context.Context, userID string, expected int64) (saga.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET points = 0
		WHERE user_id = $1 AND points = $2
		RETURNING user_id, points`,
		userID, expected,
	)
	customer, err := scanCustomer(row, userID)
	if !errors.Is(err, saga.ErrNotFound) {
		return customer, err
	}
	return saga.Customer{}, s.explainMiss(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE user_id = $1)`, "customer", userID)
}

// SetPoints upserts the balance.
func (s *PostgresRecordStore) SetPoints(ctx context.Context, userID string, points int64) (saga.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (user_id, points)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET points = EXCLUDED.points
		RETURNING user_id, points`,
		userID, points,
	)
	return scanCustomer(row, userID)
}

// explainMiss tells a missing row apart from a condition that did not hold.
func (s *PostgresRecordStore) explainMiss(ctx context.Context, query, entity, key string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %q: %w", entity, key, saga.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", entity, key, saga.ErrConditionFailed)
}

func scanBook(row *sql.Row, bookID string) (saga.Book, error) {
	var book saga.Book
	if err := row.Scan(&book.BookID, &book.Quantity, &book.Price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
		}
		return saga.Book{}, err
	}
	return book, nil
}

func scanCustomer(row *sql.Row, userID string) (saga.Customer, error) {
	var customer saga.Customer
	if err := row.Scan(&customer.UserID, &customer.Points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.Customer{}, fmt.Errorf("customer %q: %w", userID, saga.ErrNotFound)
		}
		return saga.Customer{}, err
	}
	return customer, nil
}
