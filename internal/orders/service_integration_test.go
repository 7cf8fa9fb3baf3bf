package orders_test

import (
	"context"
	"testing"
	"time"

	ordersdb "booksaga/internal/db/orders"
	"booksaga/internal/orders"
	"booksaga/internal/orders/saga"
	"booksaga/internal/store"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestService_BillsAndRefundsWithPostgres(t *testing.T) {
	ctx := context.Background()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}()

	billedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS billing_charges").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS saga_steps").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS saga_steps_saga_id_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO saga_steps").
		WithArgs("saga-1", orders.StepBillCustomer, "started", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO billing_charges").
		WithArgs("saga-1", sqlmock.AnyArg(), "u1", 9.99).
		WillReturnRows(sqlmock.NewRows([]string{"confirmation_id", "billed_at"}).AddRow("conf-1", billedAt))
	mock.ExpectExec("INSERT INTO saga_steps").
		WithArgs("saga-1", orders.StepBillCustomer, "succeeded", "").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO saga_steps").
		WithArgs("saga-1", orders.StepRefundBilling, "started", "").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("UPDATE billing_charges SET refunded_at").
		WithArgs("saga-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO saga_steps").
		WithArgs("saga-1", orders.StepRefundBilling, "succeeded", "").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectClose()

	billing, err := ordersdb.NewPostgresBillingClientWithSchema(ctx, sqlDB)
	if err != nil {
		t.Fatalf("init billing: %v", err)
	}
	journal, err := ordersdb.NewSagaJournalWithSchema(ctx, sqlDB)
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}

	service := orders.NewService(store.NewMemoryStore(), billing, orders.WithJournal(journal))
	sagaCtx := saga.WithSagaID(ctx, "saga-1")

	confirmation, err := service.BillCustomer(sagaCtx, saga.ChargeInfo{UserID: "u1", Total: saga.OrderTotal{Total: 9.99}})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	if confirmation.ConfirmationID != "conf-1" || confirmation.Message != "Successfully Billed" {
		t.Fatalf("unexpected confirmation: %+v", confirmation)
	}

	if err := service.RefundBilling(sagaCtx, ""); err != nil {
		t.Fatalf("refund: %v", err)
	}
}
