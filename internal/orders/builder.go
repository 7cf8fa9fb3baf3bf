package orders

import (
	"context"
	"database/sql"
	"time"

	ordersdb "booksaga/internal/db/orders"
	"booksaga/internal/observability"
	"booksaga/internal/orders/saga"

	"go.uber.org/zap"
)

// BuildConfig carries what BuildService and BuildCourierClient need.
type BuildConfig struct {
	Store       saga.RecordStore
	DB          *sql.DB
	Reliability ReliabilityConfig
	Courier     string
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// BuildService wires a Service from config. With a database the billing
// ledger and step journal live in Postgres; when their schema cannot be
// initialized it falls back to in-memory billing and no journal.
func BuildService(ctx context.Context, cfg BuildConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var billing BillingClient = NewInMemoryBillingClient()
	opts := []Option{WithLogger(logger), WithMetrics(cfg.Metrics)}

	if cfg.DB != nil {
		setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if client, err := ordersdb.NewPostgresBillingClientWithSchema(setupCtx, cfg.DB); err != nil {
			logger.Warn("postgres billing init failed, falling back to in-memory billing", zap.Error(err))
		} else {
			logger.Info("postgres billing enabled")
			billing = client
		}

		if journal, err := ordersdb.NewSagaJournalWithSchema(setupCtx, cfg.DB); err != nil {
			logger.Warn("saga journal init failed, steps will not be journaled", zap.Error(err))
		} else {
			opts = append(opts, WithJournal(journal))
		}
	}

	limiter, breaker, retry := cfg.Reliability.Controls()
	billing = NewReliableBillingClient(billing, limiter, breaker, retry)

	return NewService(cfg.Store, billing, opts...)
}

// BuildCourierClient returns the courier client used by the fulfillment
// worker: the static placeholder courier, persisted per saga when a database
// is available.
func BuildCourierClient(ctx context.Context, cfg BuildConfig) CourierClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var couriers CourierClient = StaticCourierClient{Courier: cfg.Courier}
	if cfg.DB != nil {
		setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		placeholder := StaticCourierClient{Courier: cfg.Courier}
		client, err := ordersdb.NewPostgresCourierClientWithSchema(setupCtx, cfg.DB, placeholder.Assign)
		if err != nil {
			logger.Warn("courier assignment store init failed, assignments will not be persisted", zap.Error(err))
		} else {
			couriers = client
		}
	}

	limiter, breaker, retry := cfg.Reliability.Controls()
	return NewReliableCourierClient(couriers, limiter, breaker, retry)
}
