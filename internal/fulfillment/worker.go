package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booksaga/internal/callback"
	"booksaga/internal/observability"
	"booksaga/internal/orders"
	"booksaga/internal/orders/saga"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrMalformedMessage marks a queue record that cannot be processed. Such
// records resolve no token and are not redelivered.
var ErrMalformedMessage = errors.New("malformed fulfillment message")

// ErrDuplicateDelivery marks a message whose token another delivery claimed
// but has not completed. Stock is left alone.
var ErrDuplicateDelivery = errors.New("fulfillment message already claimed")

// ErrUnresolvable marks a token the resolver will never accept.
var ErrUnresolvable = errors.New("callback token cannot be resolved")

// defaultLedgerTTL bounds how long a processed token is remembered.
const defaultLedgerTTL = 24 * time.Hour

// Permanent reports whether redelivering the message that produced err can
// change anything.
func Permanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrDuplicateDelivery) ||
		errors.Is(err, ErrUnresolvable)
}

// Failure reported to the orchestrator for any fulfillment error.
const (
	FailureCode  = string(saga.KindNoCourierAvailable)
	FailureCause = "No couriers are available"
)

// Worker consumes fulfillment messages: it takes the ordered quantity out of
// stock, assigns a courier and resolves the message's callback token. It never
// runs compensations; that is the orchestrator's decision.
type Worker struct {
	books     saga.BookStore
	couriers  orders.CourierClient
	resolver  saga.Resolver
	ledger    Ledger
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option customizes a Worker.
type Option func(*Worker)

func WithPublisher(publisher EventPublisher) Option {
	return func(w *Worker) { w.publisher = publisher }
}

// WithLedger replaces the process-local ledger of processed tokens.
func WithLedger(ledger Ledger) Option {
	return func(w *Worker) {
		if ledger != nil {
			w.ledger = ledger
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(w *Worker) { w.metrics = metrics }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

// NewWorker constructs a Worker. A nil courier client assigns the placeholder courier.
func NewWorker(books saga.BookStore, couriers orders.CourierClient, resolver saga.Resolver, opts ...Option) *Worker {
	if couriers == nil {
		couriers = orders.StaticCourierClient{}
	}
	w := &Worker{
		books:    books,
		couriers: couriers,
		resolver: resolver,
		ledger:   NewMemoryLedger(defaultLedgerTTL),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("booksaga/fulfillment"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle processes the first record of a queue event.
func (w *Worker) Handle(ctx context.Context, event saga.QueueEvent) error {
	if len(event.Records) == 0 {
		return fmt.Errorf("%w: no records", ErrMalformedMessage)
	}
	return w.HandleBody(ctx, []byte(event.Records[0].Body))
}

// HandleBody processes one raw message body.
func (w *Worker) HandleBody(ctx context.Context, body []byte) error {
	ctx, span := w.tracer.Start(ctx, "fulfillment.handle")
	defer span.End()

	var msg saga.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		span.SetStatus(codes.Error, "malformed")
		w.logger.Warn("discarding malformed fulfillment message", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Token == "" {
		span.SetStatus(codes.Error, "malformed")
		w.logger.Warn("discarding fulfillment message without token", zap.String("book_id", msg.Input.BookID))
		return fmt.Errorf("%w: missing token", ErrMalformedMessage)
	}

	input := msg.Input
	span.SetAttributes(
		attribute.String("saga.id", input.SagaID),
		attribute.String("book.id", input.BookID),
		attribute.Int64("book.quantity", input.Quantity),
	)
	logger := w.logger.With(
		zap.String("saga_id", input.SagaID),
		zap.String("book_id", input.BookID),
		zap.Int64("quantity", input.Quantity),
	)

	claimed, err := w.ledger.Claim(ctx, msg.Token)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("claim token: %w", err)
	}
	if !claimed {
		return w.replay(ctx, msg.Token, logger)
	}

	call := w.metrics.Start("fulfill")
	state, err := StateReceived.Next(StateMutating)
	if err != nil {
		call.End(err)
		return err
	}

	outcome := Outcome{
		Token:    msg.Token,
		SagaID:   input.SagaID,
		BookID:   input.BookID,
		Quantity: input.Quantity,
	}

	courier, fulfillErr := w.fulfill(ctx, input)
	call.End(fulfillErr)

	next := StateSucceeded
	if fulfillErr != nil {
		next = StateFailed
		outcome.Error = FailureCode
		span.RecordError(fulfillErr)
		span.SetStatus(codes.Error, FailureCode)
		logger.Warn("fulfillment failed", zap.Error(fulfillErr))
	} else {
		outcome.Courier = courier
		logger.Info("fulfillment succeeded", zap.String("courier", courier))
	}
	if outcome.Status, err = state.Next(next); err != nil {
		return err
	}
	outcome.At = w.now().UTC()

	if err := w.ledger.Complete(ctx, outcome); err != nil {
		logger.Error("record processed token", zap.Error(err))
	}
	w.metrics.RecordFulfillment(string(outcome.Status))
	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, outcome); err != nil {
			logger.Warn("publish fulfillment outcome", zap.Error(err))
		}
	}

	if err := w.resolve(ctx, outcome); err != nil {
		span.RecordError(err)
		logger.Error("resolve callback token", zap.String("status", string(outcome.Status)), zap.Error(err))
		return err
	}
	return nil
}

// replay resolves a token whose stock change already landed, using the
// outcome recorded the first time.
func (w *Worker) replay(ctx context.Context, token string, logger *zap.Logger) error {
	prior, ok, err := w.ledger.Lookup(ctx, token)
	if err != nil {
		return fmt.Errorf("look up token: %w", err)
	}
	if !ok {
		logger.Warn("skipping fulfillment message claimed by another delivery")
		return ErrDuplicateDelivery
	}
	logger.Info("replaying recorded fulfillment outcome", zap.String("status", string(prior.Status)))
	if err := w.resolve(ctx, prior); err != nil {
		logger.Error("resolve callback token", zap.String("status", string(prior.Status)), zap.Error(err))
		return err
	}
	return nil
}

func (w *Worker) resolve(ctx context.Context, outcome Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: outcome is %s", ErrUnresolvable, outcome.Status)
	}
	var err error
	if outcome.Status == StateFailed {
		err = w.resolver.ResolveFailure(ctx, outcome.Token, FailureCode, FailureCause)
	} else {
		err = w.resolver.ResolveSuccess(ctx, outcome.Token, map[string]string{"courier": outcome.Courier})
	}
	switch {
	case err == nil, errors.Is(err, callback.ErrAlreadyResolved):
		return nil
	case errors.Is(err, callback.ErrUnknownToken), errors.Is(err, callback.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrUnresolvable, err)
	default:
		return fmt.Errorf("resolve token: %w", err)
	}
}

func (w *Worker) fulfill(ctx context.Context, input saga.FulfillmentInput) (string, error) {
	if input.BookID == "" {
		return "", errors.New("order line without book")
	}
	if input.Quantity <= 0 {
		return "", saga.ErrInvalidQuantity
	}
	if _, err := w.books.DecrementIfAvailable(ctx, input.BookID, input.Quantity); err != nil {
		return "", fmt.Errorf("take stock: %w", err)
	}
	courier, err := w.couriers.Assign(ctx, input)
	if err != nil {
		return "", fmt.Errorf("assign courier: %w", err)
	}
	if courier == "" {
		return "", saga.ErrNoCourierAvailable
	}
	return courier, nil
}
