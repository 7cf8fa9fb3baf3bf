package orders

import (
	"context"
	"errors"
	"fmt"

	"booksaga/internal/observability"
	"booksaga/internal/orders/saga"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Step names as reported to metrics, traces and the step journal.
const (
	StepCheckInventory      = "checkInventory"
	StepCalculateTotal      = "calculateTotal"
	StepRedeemPoints        = "redeemPoints"
	StepBillCustomer        = "billCustomer"
	StepRestoreRedeemPoints = "restoreRedeemPoints"
	StepRestoreQuantity     = "restoreQuantity"
	StepRefundBilling       = "refundBilling"
)

// BillingClient charges customers for orders. Charges are idempotent per saga ID.
type BillingClient interface {
	Charge(ctx context.Context, info saga.ChargeInfo) (saga.BillingConfirmation, error)
	Refund(ctx context.Context, sagaID string) error
}

// CourierClient assigns a courier to a fulfilled order.
type CourierClient interface {
	Assign(ctx context.Context, input saga.FulfillmentInput) (string, error)
}

// Service implements the synchronous saga steps and their compensations.
// It holds no state between calls; every mutation is one atomic update on one
// record in the injected store.
type Service struct {
	store   saga.RecordStore
	billing BillingClient
	journal saga.StepJournal
	metrics *observability.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	newKey  func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithJournal records step outcomes for calls that carry a saga ID.
func WithJournal(journal saga.StepJournal) Option {
	return func(s *Service) { s.journal = journal }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a Service. A nil billing client bills nothing.
func NewService(store saga.RecordStore, billing BillingClient, opts ...Option) *Service {
	if billing == nil {
		billing = &NoopBillingClient{}
	}
	s := &Service{
		store:   store,
		billing: billing,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("booksaga/orders"),
		newKey:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckInventory returns the book when quantity can be taken from it while
// leaving at least one unit behind. It never mutates the store.
func (s *Service) CheckInventory(ctx context.Context, bookID string, quantity int64) (saga.Book, error) {
	if quantity <= 0 {
		return saga.Book{}, fmt.Errorf("%s: %w", StepCheckInventory, saga.ErrInvalidQuantity)
	}
	var book saga.Book
	err := s.run(ctx, StepCheckInventory, func(ctx context.Context) error {
		found, err := s.store.QueryBook(ctx, bookID)
		if err != nil {
			return saga.NewStepError(saga.KindBookNotFound, StepCheckInventory, "", err)
		}
		if !IsBookAvailable(found, quantity) {
			return saga.NewStepError(saga.KindBookOutOfStock, StepCheckInventory, "", nil)
		}
		book = found
		return nil
	}, zap.String("book_id", bookID), zap.Int64("quantity", quantity))
	return book, err
}

// IsBookAvailable is the availability rule shared by the check and the
// fulfillment decrement.
func IsBookAvailable(book saga.Book, quantity int64) bool {
	return book.Quantity-quantity > 0
}

// CalculateTotal prices an order. It performs no I/O.
func (s *Service) CalculateTotal(book saga.Book, quantity int64) saga.OrderTotal {
	span := s.metrics.Start(StepCalculateTotal)
	defer span.End(nil)
	return CalculateTotal(book, quantity)
}

// CalculateTotal is the pure pricing rule.
func CalculateTotal(book saga.Book, quantity int64) saga.OrderTotal {
	return saga.OrderTotal{Total: book.Price * float64(quantity)}
}

// RedeemPoints consumes the customer's whole loyalty balance against the
// order total. Redemption is allowed only when the total exceeds the balance.
func (s *Service) RedeemPoints(ctx context.Context, userID string, orderTotal saga.OrderTotal) (saga.OrderTotal, error) {
	var out saga.OrderTotal
	err := s.run(ctx, StepRedeemPoints, func(ctx context.Context) error {
		customer, err := s.store.GetCustomer(ctx, userID)
		if err != nil {
			return saga.NewStepError(saga.KindStoreError, StepRedeemPoints, "fetch customer", err)
		}
		if orderTotal.Total <= float64(customer.Points) {
			return saga.NewStepError(saga.KindInsufficientRedemption, StepRedeemPoints, "", nil)
		}
		if _, err := s.store.ZeroPointsIfEqual(ctx, userID, customer.Points); err != nil {
			return saga.NewStepError(saga.KindStoreError, StepRedeemPoints, "consume points", err)
		}
		points := customer.Points
		out = saga.OrderTotal{Total: orderTotal.Total - float64(points), Points: &points}
		return nil
	}, zap.String("user_id", userID), zap.Float64("total", orderTotal.Total))
	return out, err
}

// BillCustomer charges the (possibly discounted) total. When the caller
// supplies no saga ID the one on ctx is used, else a fresh idempotency key.
func (s *Service) BillCustomer(ctx context.Context, info saga.ChargeInfo) (saga.BillingConfirmation, error) {
	if info.SagaID == "" {
		info.SagaID = saga.SagaIDFromContext(ctx)
	}
	if info.SagaID == "" {
		info.SagaID = s.newKey()
	}
	var confirmation saga.BillingConfirmation
	err := s.run(ctx, StepBillCustomer, func(ctx context.Context) error {
		var err error
		confirmation, err = s.billing.Charge(ctx, info)
		if err != nil {
			return saga.NewStepError(saga.KindStoreError, StepBillCustomer, "charge", err)
		}
		return nil
	}, zap.String("user_id", info.UserID), zap.Float64("total", info.Total.Total))
	return confirmation, err
}

func (s *Service) run(ctx context.Context, step string, fn func(context.Context) error, fields ...zap.Field) error {
	sagaID := saga.SagaIDFromContext(ctx)
	ctx, span := s.tracer.Start(ctx, "saga."+step, trace.WithAttributes(
		attribute.String("saga.step", step),
		attribute.String("saga.id", sagaID),
	))
	defer span.End()

	call := s.metrics.Start(step)
	s.record(ctx, sagaID, step, saga.StepStarted, "")

	err := fn(ctx)
	call.End(err)

	fields = append(fields, zap.String("step", step), zap.String("saga_id", sagaID))
	if err != nil {
		kind := saga.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		s.record(ctx, sagaID, step, saga.StepFailed, string(kind))

		log := s.logger.Warn
		if kind == saga.KindStoreError || kind == "" {
			log = s.logger.Error
		}
		log("saga step failed", append(fields, zap.String("kind", string(kind)), zap.Error(err))...)
		return err
	}

	s.record(ctx, sagaID, step, saga.StepSucceeded, "")
	s.logger.Debug("saga step succeeded", fields...)
	return nil
}

func (s *Service) record(ctx context.Context, sagaID, step string, status saga.StepStatus, detail string) {
	if s.journal == nil || sagaID == "" {
		return
	}
	if err := s.journal.AddStep(ctx, sagaID, step, status, detail); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("journal step", zap.String("saga_id", sagaID), zap.String("step", step), zap.Error(err))
	}
}
