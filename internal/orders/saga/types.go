package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Book is the inventory record for a single title.
type Book struct {
	BookID   string  `json:"bookId"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// Customer holds the loyalty balance for a user.
type Customer struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
}

// OrderTotal flows from pricing through redemption and billing.
// Points is set only when a redemption may need to be compensated later.
type OrderTotal struct {
	Total  float64 `json:"total"`
	Points *int64  `json:"points,omitempty"`
}

// RedeemedPoints returns the consumed points, or zero when nothing was redeemed.
func (t OrderTotal) RedeemedPoints() int64 {
	if t.Points == nil {
		return 0
	}
	return *t.Points
}

// ChargeInfo is the input of the billing step.
type ChargeInfo struct {
	SagaID string     `json:"sagaId,omitempty"`
	UserID string     `json:"userId"`
	Total  OrderTotal `json:"total"`
}

// BillingConfirmation is returned by a successful charge.
type BillingConfirmation struct {
	ConfirmationID string    `json:"confirmationId"`
	SagaID         string    `json:"sagaId,omitempty"`
	Amount         float64   `json:"amount"`
	Message        string    `json:"message"`
	BilledAt       time.Time `json:"billedAt"`
}

// FulfillmentInput is the Input object carried by a fulfillment message.
// Fields this core does not understand are kept in Extra.
type FulfillmentInput struct {
	BookID   string
	Quantity int64
	UserID   string
	SagaID   string
	Extra    map[string]json.RawMessage
}

type fulfillmentInputWire struct {
	BookID   string `json:"bookId"`
	Quantity int64  `json:"quantity"`
	UserID   string `json:"userId,omitempty"`
	SagaID   string `json:"sagaId,omitempty"`
}

var knownInputFields = map[string]struct{}{
	"bookId":   {},
	"quantity": {},
	"userId":   {},
	"sagaId":   {},
}

func (in *FulfillmentInput) UnmarshalJSON(data []byte) error {
	var wire fulfillmentInputWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	in.BookID = wire.BookID
	in.Quantity = wire.Quantity
	in.UserID = wire.UserID
	in.SagaID = wire.SagaID
	in.Extra = nil
	for k, v := range all {
		if _, ok := knownInputFields[k]; ok {
			continue
		}
		if in.Extra == nil {
			in.Extra = make(map[string]json.RawMessage)
		}
		in.Extra[k] = v
	}
	return nil
}

func (in FulfillmentInput) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(in.Extra)+4)
	for k, v := range in.Extra {
		out[k] = v
	}
	out["bookId"] = in.BookID
	out["quantity"] = in.Quantity
	if in.UserID != "" {
		out["userId"] = in.UserID
	}
	if in.SagaID != "" {
		out["sagaId"] = in.SagaID
	}
	return json.Marshal(out)
}

// Message is the body of a queued fulfillment task.
type Message struct {
	Input FulfillmentInput `json:"Input"`
	Token string           `json:"Token"`
}

// QueueRecord is a single delivered queue record.
type QueueRecord struct {
	MessageID string `json:"messageId,omitempty"`
	Body      string `json:"body"`
}

// QueueEvent is the envelope handed to the fulfillment worker.
type QueueEvent struct {
	Records []QueueRecord `json:"Records"`
}

// StepStatus is the outcome recorded for a saga step.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepJournal records step outcomes per saga instance.
type StepJournal interface {
	AddStep(ctx context.Context, sagaID, step string, status StepStatus, detail string) error
}

// BookStore is the record store surface for books. Every mutation is a single
// atomic update on one record.
type BookStore interface {
	GetBook(ctx context.Context, bookID string) (Book, error)
	QueryBook(ctx context.Context, bookID string) (Book, error)
	// AddQuantity applies quantity = quantity + delta and returns the updated record.
	AddQuantity(ctx context.Context, bookID string, delta int64) (Book, error)
	// DecrementIfAvailable applies quantity = quantity - n only when the result stays above zero.
	DecrementIfAvailable(ctx context.Context, bookID string, n int64) (Book, error)
}

// CustomerStore is the record store surface for customers.
type CustomerStore interface {
	GetCustomer(ctx context.Context, userID string) (Customer, error)
	// ZeroPointsIfEqual sets points to zero only when the current balance equals expected.
	ZeroPointsIfEqual(ctx context.Context, userID string, expected int64) (Customer, error)
	SetPoints(ctx context.Context, userID string, points int64) (Customer, error)
}

// RecordStore groups both entity stores.
type RecordStore interface {
	BookStore
	CustomerStore
}

// Resolver resolves callback tokens held by the orchestrator.
type Resolver interface {
	ResolveSuccess(ctx context.Context, token string, output any) error
	ResolveFailure(ctx context.Context, token, code, cause string) error
}

var (
	// ErrNotFound is returned by stores when the record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional update does not apply.
	ErrConditionFailed = errors.New("conditional update failed")

	// ErrIdempotencyConflict signals a saga ID reused for a different charge.
	ErrIdempotencyConflict = errors.New("saga already billed with a different charge")
	// ErrNotCharged signals a saga has no recorded charge.
	ErrNotCharged = errors.New("saga not charged")
	// ErrAlreadyRefunded signals a charge has already been refunded.
	ErrAlreadyRefunded = errors.New("charge already refunded")
)

type sagaIDKey struct{}

// WithSagaID attaches the saga instance identity to ctx.
func WithSagaID(ctx context.Context, sagaID string) context.Context {
	if sagaID == "" {
		return ctx
	}
	return context.WithValue(ctx, sagaIDKey{}, sagaID)
}

// SagaIDFromContext returns the saga instance identity, if any.
func SagaIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sagaIDKey{}).(string)
	return id
}
