package orders

import (
	"context"
	"time"

	"booksaga/internal/orders/saga"
)

// DefaultCourier is the placeholder courier handed out by the stub client.
const DefaultCourier = "courier-placeholder"

// NoopBillingClient is a stub BillingClient that always succeeds.
type NoopBillingClient struct{}

func (n *NoopBillingClient) Charge(ctx context.Context, info saga.ChargeInfo) (saga.BillingConfirmation, error) {
	return saga.BillingConfirmation{
		ConfirmationID: info.SagaID,
		SagaID:         info.SagaID,
		Amount:         info.Total.Total,
		Message:        "Successfully Billed",
		BilledAt:       time.Now().UTC(),
	}, nil
}

func (n *NoopBillingClient) Refund(ctx context.Context, sagaID string) error {
	return nil
}

// StaticCourierClient always assigns the same courier.
type StaticCourierClient struct {
	Courier string
}

func (c StaticCourierClient) Assign(ctx context.Context, input saga.FulfillmentInput) (string, error) {
	if c.Courier == "" {
		return DefaultCourier, nil
	}
	return c.Courier, nil
}
