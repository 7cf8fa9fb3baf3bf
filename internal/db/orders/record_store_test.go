package ordersdb

import (
	"context"
	"errors"
	"testing"

	"booksaga/internal/orders/saga"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var bookColumns = []string{"book_id", "quantity", "price"}

func TestRecordStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS books").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS customers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store, err := NewPostgresRecordStoreWithSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("WithSchema: %v", err)
	}
	if store == nil {
		t.Fatalf("expected store")
	}
}

func TestRecordStore_QueryBook(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT book_id, quantity, price FROM books").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows(bookColumns).AddRow("book-1", int64(10), 12.5))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	book, err := store.QueryBook(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("QueryBook: %v", err)
	}
	if book.BookID != "book-1" || book.Quantity != 10 || book.Price != 12.5 {
		t.Fatalf("unexpected book: %+v", book)
	}
}

func TestRecordStore_QueryBook_NoItems(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT book_id, quantity, price FROM books").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(bookColumns))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	if _, err := store.QueryBook(context.Background(), "missing"); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordStore_AddQuantity(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("UPDATE books SET quantity = quantity").
		WithArgs("book-1", int64(3)).
		WillReturnRows(sqlmock.NewRows(bookColumns).AddRow("book-1", int64(13), 12.5))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	book, err := store.AddQuantity(context.Background(), "book-1", 3)
	if err != nil {
		t.Fatalf("AddQuantity: %v", err)
	}
	if book.Quantity != 13 {
		t.Fatalf("unexpected quantity: %d", book.Quantity)
	}
}

func TestRecordStore_DecrementIfAvailable_ConditionFailed(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("UPDATE books SET quantity = quantity").
		WithArgs("book-1", int64(5)).
		WillReturnRows(sqlmock.NewRows(bookColumns))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	if _, err := store.DecrementIfAvailable(context.Background(), "book-1", 5); !errors.Is(err, saga.ErrConditionFailed) {
		t.Fatalf("expected condition failure, got %v", err)
	}
}

func TestRecordStore_DecrementIfAvailable_Missing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("UPDATE books SET quantity = quantity").
		WithArgs("ghost", int64(1)).
		WillReturnRows(sqlmock.NewRows(bookColumns))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	if _, err := store.DecrementIfAvailable(context.Background(), "ghost", 1); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordStore_ZeroPointsIfEqual(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("UPDATE customers SET points = 0").
		WithArgs("user-1", int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "points"}).AddRow("user-1", int64(0)))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	customer, err := store.ZeroPointsIfEqual(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("ZeroPointsIfEqual: %v", err)
	}
	if customer.Points != 0 {
		t.Fatalf("expected zero points, got %d", customer.Points)
	}
}

func TestRecordStore_SetPoints(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("INSERT INTO customers").
		WithArgs("user-1", int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "points"}).AddRow("user-1", int64(50)))
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	customer, err := store.SetPoints(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("SetPoints: %v", err)
	}
	if customer.Points != 50 {
		t.Fatalf("expected 50 points, got %d", customer.Points)
	}
}

func TestRecordStore_GetCustomer_StoreError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT user_id, points FROM customers").
		WithArgs("user-1").
		WillReturnError(boom)
	mock.ExpectClose()

	store := NewPostgresRecordStore(db)
	if _, err := store.GetCustomer(context.Background(), "user-1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
