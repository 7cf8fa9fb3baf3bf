package queue

import (
	"context"
	"errors"
	"sync"

	"booksaga/internal/fulfillment"
	"booksaga/internal/orders/saga"

	"go.uber.org/zap"
)

// ErrClosed is returned by a Source whose underlying delivery channel ended.
var ErrClosed = errors.New("queue source closed")

// Handler processes one queue event.
type Handler interface {
	Handle(ctx context.Context, event saga.QueueEvent) error
}

// Delivery is a fetched event plus its settlement callbacks.
type Delivery struct {
	Event saga.QueueEvent
	// Ack settles the delivery.
	Ack func(ctx context.Context) error
	// Nack leaves the delivery for redelivery, where the transport supports it.
	Nack func(ctx context.Context) error
}

// Source pulls deliveries from a transport.
type Source interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

// Run dispatches deliveries from src to a pool of workers until ctx ends or
// the source fails. Handled deliveries and permanent failures are acked;
// other failures are nacked. Deliveries still queued when ctx ends are
// nacked without being handled.
func Run(ctx context.Context, src Source, h Handler, workers int, logger *zap.Logger) error {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jobs := make(chan Delivery, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				if ctx.Err() != nil {
					release(ctx, d, logger)
					continue
				}
				settle(ctx, d, h.Handle(ctx, d.Event), logger)
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		d, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- d:
		case <-ctx.Done():
			release(ctx, d, logger)
			return nil
		}
	}
}

func settle(ctx context.Context, d Delivery, err error, logger *zap.Logger) {
	settleFn := d.Ack
	switch {
	case err == nil:
	case fulfillment.Permanent(err):
		logger.Warn("dropping delivery", zap.Error(err))
	default:
		logger.Error("fulfillment delivery failed", zap.Error(err))
		settleFn = d.Nack
	}
	if settleFn == nil {
		return
	}
	if err := settleFn(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("settle delivery", zap.Error(err))
	}
}

func release(ctx context.Context, d Delivery, logger *zap.Logger) {
	if d.Nack == nil {
		return
	}
	if err := d.Nack(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("release delivery", zap.Error(err))
	}
}

func singleRecord(id string, body []byte) saga.QueueEvent {
	return saga.QueueEvent{Records: []saga.QueueRecord{{MessageID: id, Body: string(body)}}}
}
