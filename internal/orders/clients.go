package orders

import (
	"context"
	"sync"
	"time"

	"booksaga/internal/orders/saga"

	"github.com/google/uuid"
)

// NewInMemoryBillingClient constructs an in-memory billing client.
func NewInMemoryBillingClient() *InMemoryBillingClient {
	return &InMemoryBillingClient{
		charges:  make(map[string]saga.BillingConfirmation),
		refunded: make(map[string]bool),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// InMemoryBillingClient tracks charges and refunds in memory, keyed by saga ID.
type InMemoryBillingClient struct {
	mu       sync.Mutex
	charges  map[string]saga.BillingConfirmation
	refunded map[string]bool
	newID    func() string
	now      func() time.Time
}

func (c *InMemoryBillingClient) Charge(ctx context.Context, info saga.ChargeInfo) (saga.BillingConfirmation, error) {
	if err := ctx.Err(); err != nil {
		return saga.BillingConfirmation{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.charges[info.SagaID]; ok {
		if existing.Amount != info.Total.Total {
			return saga.BillingConfirmation{}, saga.ErrIdempotencyConflict
		}
		return existing, nil
	}
	confirmation := saga.BillingConfirmation{
		ConfirmationID: c.newID(),
		SagaID:         info.SagaID,
		Amount:         info.Total.Total,
		Message:        "Successfully Billed",
		BilledAt:       c.now().UTC(),
	}
	c.charges[info.SagaID] = confirmation
	return confirmation, nil
}

func (c *InMemoryBillingClient) Refund(ctx context.Context, sagaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.charges[sagaID]; !ok {
		return saga.ErrNotCharged
	}
	if c.refunded[sagaID] {
		return saga.ErrAlreadyRefunded
	}
	c.refunded[sagaID] = true
	return nil
}

// Charged returns the confirmation recorded for a saga (for testing/inspection).
func (c *InMemoryBillingClient) Charged(sagaID string) (saga.BillingConfirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	confirmation, ok := c.charges[sagaID]
	return confirmation, ok
}

// WasRefunded reports whether a saga's charge was refunded (for testing/inspection).
func (c *InMemoryBillingClient) WasRefunded(sagaID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refunded[sagaID]
}

// NewInMemoryCourierClient constructs an in-memory courier client that hands
// out the given couriers round-robin.
func NewInMemoryCourierClient(couriers ...string) *InMemoryCourierClient {
	if len(couriers) == 0 {
		couriers = []string{DefaultCourier}
	}
	return &InMemoryCourierClient{
		couriers:    couriers,
		assignments: make(map[string]string),
	}
}

// InMemoryCourierClient tracks courier assignments in memory.
type InMemoryCourierClient struct {
	mu          sync.Mutex
	couriers    []string
	next        int
	assignments map[string]string
}

func (c *InMemoryCourierClient) Assign(ctx context.Context, input saga.FulfillmentInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := assignmentKey(input)
	if courier, ok := c.assignments[key]; ok {
		return courier, nil
	}
	courier := c.couriers[c.next%len(c.couriers)]
	c.next++
	c.assignments[key] = courier
	return courier, nil
}

// Assignment returns the courier assigned to a saga (or book, without a saga ID).
func (c *InMemoryCourierClient) Assignment(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	courier, ok := c.assignments[key]
	return courier, ok
}

func assignmentKey(input saga.FulfillmentInput) string {
	if input.SagaID != "" {
		return input.SagaID
	}
	return input.BookID
}
