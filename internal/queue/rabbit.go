package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp.Channel used by RabbitSource.
type AMQPChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitSource consumes fulfillment messages from a durable RabbitMQ queue
// with manual acknowledgements.
type RabbitSource struct {
	conn *amqp.Connection
	ch   AMQPChannel
	msgs <-chan amqp.Delivery
}

// DialRabbit connects to url and starts consuming queue.
func DialRabbit(url, queue string, prefetch int) (*RabbitSource, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	src, err := NewRabbitSource(ch, queue, prefetch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	src.conn = conn
	return src, nil
}

// NewRabbitSource declares queue on ch and starts consuming it.
func NewRabbitSource(ch AMQPChannel, queue string, prefetch int) (*RabbitSource, error) {
	if queue == "" {
		queue = "fulfillment.tasks"
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	msgs, err := ch.Consume(queue, "booksaga-fulfillment", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &RabbitSource{ch: ch, msgs: msgs}, nil
}

func (r *RabbitSource) Fetch(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			return Delivery{}, ErrClosed
		}
		return Delivery{
			Event: singleRecord(m.MessageId, m.Body),
			Ack:   func(context.Context) error { return m.Ack(false) },
			Nack:  func(context.Context) error { return m.Nack(false, true) },
		}, nil
	}
}

func (r *RabbitSource) Close() error {
	err := r.ch.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
