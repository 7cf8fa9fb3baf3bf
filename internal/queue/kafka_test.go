package queue

import (
	"context"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSource_CommitsOnAck(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "tasks", Partition: 0, Offset: 7, Value: []byte(`{"Token":"a"}`)},
		{Topic: "tasks", Partition: 0, Offset: 8, Value: []byte(`{"Token":"b"}`)},
	}}
	src := NewKafkaSource(reader)
	ctx := context.Background()

	first, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first.Event.Records[0].MessageID != "tasks/0/7" || first.Event.Records[0].Body != `{"Token":"a"}` {
		t.Fatalf("unexpected event: %+v", first.Event)
	}
	if err := first.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	second, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := second.Nack(ctx); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Fatalf("expected only offset 7 committed, got %v", reader.committed)
	}

	if _, err := src.Fetch(ctx); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if err := src.Close(); err != nil || !reader.closed {
		t.Fatalf("expected reader closed")
	}
}
