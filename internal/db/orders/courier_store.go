package ordersdb

import (
	"context"
	"database/sql"
	"fmt"

	"booksaga/internal/orders/saga"
)

// CourierPicker chooses a courier for a fulfillment input.
type CourierPicker func(ctx context.Context, input saga.FulfillmentInput) (string, error)

// PostgresCourierClient persists courier assignments per saga in Postgres.
// The first assignment for a saga wins.
type PostgresCourierClient struct {
	db   *sql.DB
	pick CourierPicker
}

// NewPostgresCourierClient constructs a courier client backed by Postgres.
func NewPostgresCourierClient(db *sql.DB, pick CourierPicker) *PostgresCourierClient {
	return &PostgresCourierClient{db: db, pick: pick}
}

// NewPostgresCourierClientWithSchema initializes the schema then returns the client.
func NewPostgresCourierClientWithSchema(ctx context.Context, db *sql.DB, pick CourierPicker) (*PostgresCourierClient, error) {
	client := NewPostgresCourierClient(db, pick)
	if err := client.InitSchema(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// InitSchema creates the courier_assignments table if it does not exist.
func (c *PostgresCourierClient) InitSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS courier_assignments (
			saga_id TEXT PRIMARY KEY,
			courier TEXT NOT NULL,
			book_id TEXT NOT NULL,
			assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Assign picks a courier and stores the assignment. Re-delivered messages for
// the same saga get the courier stored the first time.
func (c *PostgresCourierClient) Assign(ctx context.Context, input saga.FulfillmentInput) (string, error) {
	if c.pick == nil {
		return "", fmt.Errorf("no courier picker configured")
	}
	courier, err := c.pick(ctx, input)
	if err != nil {
		return "", err
	}
	if input.SagaID == "" {
		return courier, nil
	}

	res, err := c.db.ExecContext(ctx, `INSERT INTO courier_assignments (saga_id, courier, book_id) VALUES ($1, $2, $3) ON CONFLICT (saga_id) DO NOTHING`, input.SagaID, courier, input.BookID)
	if err != nil {
		return "", err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected > 0 {
		return courier, nil
	}

	var existing string
	row := c.db.QueryRowContext(ctx, `SELECT courier FROM courier_assignments WHERE saga_id = $1`, input.SagaID)
	switch scanErr := row.Scan(&existing); scanErr {
	case nil:
		return existing, nil
	case sql.ErrNoRows:
		return "", fmt.Errorf("assignment not found after insert")
	default:
		return "", scanErr
	}
}
