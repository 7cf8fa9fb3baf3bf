package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamClient is the minimal client surface used by RedisStreamSource.
type RedisStreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamSource consumes fulfillment messages from a Redis stream through
// a consumer group. Each entry carries the message JSON in its "body" field.
type RedisStreamSource struct {
	client   RedisStreamClient
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// NewRedisStreamSource creates the consumer group (and stream) if needed.
func NewRedisStreamSource(ctx context.Context, client RedisStreamClient, stream, group, consumer string, block time.Duration) (*RedisStreamSource, error) {
	if stream == "" {
		stream = "fulfillment_tasks"
	}
	if group == "" {
		group = "fulfillment"
	}
	if consumer == "" {
		consumer = "worker"
	}
	if block <= 0 {
		block = time.Second
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &RedisStreamSource{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
	}, nil
}

// Enqueue appends a message body to the stream.
func (s *RedisStreamSource) Enqueue(ctx context.Context, body []byte) (string, error) {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"body": string(body)},
	}).Result()
}

func (s *RedisStreamSource) Fetch(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    1,
			Block:    s.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Delivery{}, err
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				return s.delivery(msg), nil
			}
		}
	}
}

func (s *RedisStreamSource) delivery(msg redis.XMessage) Delivery {
	body, _ := msg.Values["body"].(string)
	id := msg.ID
	return Delivery{
		Event: singleRecord(id, []byte(body)),
		Ack: func(ctx context.Context) error {
			return s.client.XAck(ctx, s.stream, s.group, id).Err()
		},
		// Unacked entries stay in the group's pending list for XCLAIM.
		Nack: func(context.Context) error { return nil },
	}
}

func (s *RedisStreamSource) Close() error { return nil }
