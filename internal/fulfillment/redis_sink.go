package fulfillment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPipelineClient is the minimal client surface used by RedisSink.
type RedisPipelineClient interface {
	Pipeline() redis.Pipeliner
}

// RedisSink stores the latest outcome per token and appends to a stream.
type RedisSink struct {
	client    RedisPipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// NewRedisSink constructs a Redis-backed outcome sink.
func NewRedisSink(client RedisPipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisSink {
	if stream == "" {
		stream = "fulfillment_events"
	}
	return &RedisSink{
		client:    client,
		stream:    stream,
		keyPrefix: "fulfillment:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Record writes the outcome hash and appends it to the stream.
func (r *RedisSink) Record(ctx context.Context, outcome Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.keyPrefix + outcome.Token
	values := map[string]any{
		"token":    outcome.Token,
		"saga_id":  outcome.SagaID,
		"book_id":  outcome.BookID,
		"quantity": outcome.Quantity,
		"status":   string(outcome.Status),
		"courier":  outcome.Courier,
		"error":    outcome.Error,
		"at":       outcome.At.UTC().Format(time.RFC3339Nano),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, values)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: values,
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}
