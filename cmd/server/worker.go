package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"booksaga/cmd/server/config"
	"booksaga/internal/callback"
	"booksaga/internal/fulfillment"
	"booksaga/internal/orders"
	"booksaga/internal/orders/saga"
	"booksaga/internal/queue"

	"github.com/redis/go-redis/v9"
)

// buildQueueSource connects the fulfillment worker to its queue. A nil source
// means the worker is disabled.
func buildQueueSource(ctx context.Context, cfg config.WorkerConfig, rdb *redis.Client) (queue.Source, error) {
	switch cfg.Queue {
	case config.QueueNone, "":
		return nil, nil
	case config.QueueRedis:
		if rdb == nil {
			return nil, errors.New("redis queue requires REDIS_URL")
		}
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		return queue.NewRedisStreamSource(ctx, rdb, cfg.TaskStream, "fulfillment", host, time.Second)
	case config.QueueRabbitMQ:
		rc, err := config.LoadRabbit()
		if err != nil {
			return nil, err
		}
		return queue.DialRabbit(rc.URL, rc.Queue, rc.Prefetch)
	case config.QueueKafka:
		kc, err := config.LoadKafka()
		if err != nil {
			return nil, err
		}
		return queue.NewKafkaSource(queue.NewKafkaReader(kc.Brokers, kc.Group, kc.Topic)), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue)
	}
}

// buildResolver resolves callback tokens over Redis. Tokens are minted by an
// orchestrator in another process, so no in-process registry can resolve them.
func buildResolver(cfg config.WorkerConfig, rdb *redis.Client) (saga.Resolver, error) {
	if rdb == nil {
		return nil, fmt.Errorf("%s queue requires REDIS_URL to resolve callback tokens", cfg.Queue)
	}
	return callback.NewRedisResolver(rdb, cfg.CallbackTTL), nil
}

// buildWorker wires the fulfillment worker. Processed tokens are shared
// through Redis so a redelivered message never takes stock twice.
func buildWorker(cfg config.WorkerConfig, redisCfg config.RedisConfig, rdb *redis.Client, books saga.BookStore, couriers orders.CourierClient, opts ...fulfillment.Option) (*fulfillment.Worker, error) {
	resolver, err := buildResolver(cfg, rdb)
	if err != nil {
		return nil, err
	}
	opts = append(opts, fulfillment.WithLedger(fulfillment.NewRedisLedger(rdb, redisCfg.OutcomeTTL)))
	return fulfillment.NewWorker(books, couriers, resolver, opts...), nil
}

// buildOutcomeSink persists fulfillment outcomes to Redis and the step
// journal, whichever are available.
func buildOutcomeSink(cfg config.RedisConfig, rdb *redis.Client, journal saga.StepJournal) fulfillment.OutcomeSink {
	var sinks []fulfillment.OutcomeSink
	if rdb != nil {
		sinks = append(sinks, fulfillment.NewRedisSink(rdb, cfg.OutcomeStream, cfg.OutcomeTTL, cfg.StreamMaxLen))
	}
	if journal != nil {
		sinks = append(sinks, fulfillment.NewJournalSink(journal))
	}
	if len(sinks) == 0 {
		return nil
	}
	return fulfillment.NewMultiSink(sinks...)
}
