package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booksaga/internal/orders/saga"

	"github.com/google/uuid"
)

// PostgresBillingClient records charges in Postgres, keyed by saga ID so a
// retried billing step never charges twice.
type PostgresBillingClient struct {
	db    *sql.DB
	newID func() string
}

// NewPostgresBillingClient constructs a billing client backed by Postgres.
func NewPostgresBillingClient(db *sql.DB) *PostgresBillingClient {
	return &PostgresBillingClient{db: db, newID: uuid.NewString}
}

// NewPostgresBillingClientWithSchema initializes the schema then returns the client.
func NewPostgresBillingClientWithSchema(ctx context.Context, db *sql.DB) (*PostgresBillingClient, error) {
	client := NewPostgresBillingClient(db)
	if err := client.InitSchema(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// InitSchema creates the billing_charges table if it does not exist.
func (p *PostgresBillingClient) InitSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS billing_charges (
			saga_id TEXT PRIMARY KEY,
			confirmation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			billed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			refunded_at TIMESTAMPTZ
		)
	`)
	return err
}

var (
	ErrIdempotencyConflict = saga.ErrIdempotencyConflict
	ErrNotCharged          = saga.ErrNotCharged
	ErrAlreadyRefunded     = saga.ErrAlreadyRefunded
)

// Charge records the charge once per saga. A repeated charge with the same
// payload returns the original confirmation.
func (p *PostgresBillingClient) Charge(ctx context.Context, charge saga.ChargeInfo) (saga.BillingConfirmation, error) {
	if charge.SagaID == "" {
		return saga.BillingConfirmation{}, fmt.Errorf("saga id required")
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO billing_charges (saga_id, confirmation_id, user_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (saga_id) DO NOTHING
		RETURNING confirmation_id, billed_at`,
		charge.SagaID, p.newID(), charge.UserID, charge.Total.Total,
	)

	conf := saga.BillingConfirmation{
		SagaID:  charge.SagaID,
		Amount:  charge.Total.Total,
		Message: "Successfully Billed",
	}
	var billedAt time.Time
	switch err := row.Scan(&conf.ConfirmationID, &billedAt); {
	case err == nil:
		conf.BilledAt = billedAt.UTC()
		return conf, nil
	case !errors.Is(err, sql.ErrNoRows):
		return saga.BillingConfirmation{}, err
	}

	var userID string
	var amount float64
	existing := p.db.QueryRowContext(ctx, `
		SELECT confirmation_id, user_id, amount, billed_at
		FROM billing_charges
		WHERE saga_id = $1`,
		charge.SagaID,
	)
	if err := existing.Scan(&conf.ConfirmationID, &userID, &amount, &billedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.BillingConfirmation{}, fmt.Errorf("charge not found after insert")
		}
		return saga.BillingConfirmation{}, err
	}
	if userID != charge.UserID || amount != charge.Total.Total {
		return saga.BillingConfirmation{}, ErrIdempotencyConflict
	}
	conf.BilledAt = billedAt.UTC()
	return conf, nil
}

// Refund marks the saga's charge as refunded.
func (p *PostgresBillingClient) Refund(ctx context.Context, sagaID string) error {
	if sagaID == "" {
		return fmt.Errorf("saga id required")
	}

	res, err := p.db.ExecContext(ctx, `UPDATE billing_charges SET refunded_at = NOW() WHERE saga_id = $1 AND refunded_at IS NULL`, sagaID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var refunded bool
	row := p.db.QueryRowContext(ctx, `SELECT refunded_at IS NOT NULL FROM billing_charges WHERE saga_id = $1`, sagaID)
	switch scanErr := row.Scan(&refunded); scanErr {
	case nil:
		if refunded {
			return ErrAlreadyRefunded
		}
		return ErrNotCharged
	case sql.ErrNoRows:
		return ErrNotCharged
	default:
		return scanErr
	}
}
