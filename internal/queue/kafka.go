package queue

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// KafkaReader is the subset of *kafka.Reader used by KafkaSource.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes fulfillment messages from a Kafka topic through a
// consumer group, committing offsets only after a message is handled.
type KafkaSource struct {
	r KafkaReader
}

// NewKafkaReader builds a group reader with manual commits.
func NewKafkaReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

func NewKafkaSource(r KafkaReader) *KafkaSource {
	return &KafkaSource{r: r}
}

func (k *KafkaSource) Fetch(ctx context.Context) (Delivery, error) {
	m, err := k.r.FetchMessage(ctx)
	if err != nil {
		return Delivery{}, err
	}
	id := m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
	return Delivery{
		Event: singleRecord(id, m.Value),
		Ack: func(ctx context.Context) error {
			return k.r.CommitMessages(ctx, m)
		},
		Nack: func(context.Context) error { return nil },
	}, nil
}

func (k *KafkaSource) Close() error {
	return k.r.Close()
}
