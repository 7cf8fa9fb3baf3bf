package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"booksaga/internal/orders/saga"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type spyBroadcaster struct {
	messages [][]byte
}

func (s *spyBroadcaster) Broadcast(msg []byte) {
	s.messages = append(s.messages, msg)
}

type spySink struct {
	outcomes []Outcome
	err      error
}

func (s *spySink) Record(ctx context.Context, outcome Outcome) error {
	s.outcomes = append(s.outcomes, outcome)
	return s.err
}

func TestFanoutPublisher_RecordsThenBroadcasts(t *testing.T) {
	sink := &spySink{}
	broadcaster := &spyBroadcaster{}
	publisher := NewFanoutPublisher(sink, broadcaster)

	outcome := Outcome{Token: "tok", BookID: "b1", Quantity: 2, Status: StateSucceeded, Courier: "courier-1"}
	if err := publisher.Publish(context.Background(), outcome); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.outcomes) != 1 {
		t.Fatalf("expected sink write")
	}
	if len(broadcaster.messages) != 1 {
		t.Fatalf("expected broadcast")
	}

	var payload map[string]any
	if err := json.Unmarshal(broadcaster.messages[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["type"] != "fulfillment" || payload["book_id"] != "b1" || payload["status"] != "succeeded" || payload["courier"] != "courier-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["quantity"] != float64(2) {
		t.Fatalf("unexpected quantity: %v", payload["quantity"])
	}
}

func TestFanoutPublisher_SinkErrorSkipsBroadcast(t *testing.T) {
	sink := &spySink{err: errors.New("down")}
	broadcaster := &spyBroadcaster{}

	if err := NewFanoutPublisher(sink, broadcaster).Publish(context.Background(), Outcome{}); err == nil {
		t.Fatalf("expected sink error")
	}
	if len(broadcaster.messages) != 0 {
		t.Fatalf("expected no broadcast")
	}
}

func TestMultiSink_WritesAllAndJoinsErrors(t *testing.T) {
	first := &spySink{err: errors.New("first")}
	second := &spySink{}
	multi := NewMultiSink(first, second)

	err := multi.Record(context.Background(), Outcome{Token: "tok"})
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(second.outcomes) != 1 {
		t.Fatalf("expected second sink to be written")
	}
}

func TestRedisSink_Record(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	sink := NewRedisSink(client, "", time.Hour, 100)
	outcome := Outcome{
		Token:    "tok-1",
		SagaID:   "saga-1",
		BookID:   "b1",
		Quantity: 2,
		Status:   StateFailed,
		Error:    FailureCode,
		At:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := sink.Record(context.Background(), outcome); err != nil {
		t.Fatalf("record: %v", err)
	}

	if got := mr.HGet("fulfillment:tok-1", "status"); got != "failed" {
		t.Fatalf("expected failed status, got %q", got)
	}
	if ttl := mr.TTL("fulfillment:tok-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	entries, err := client.XRange(context.Background(), "fulfillment_events", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 || entries[0].Values["error"] != FailureCode {
		t.Fatalf("unexpected stream entries: %+v", entries)
	}
}

func TestRedisSink_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRedisSink(nil, "", 0, 0).Record(ctx, Outcome{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	if _, err := StateReceived.Next(StateSucceeded); err == nil {
		t.Fatalf("received must pass through mutating")
	}
	state, err := StateReceived.Next(StateMutating)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state, err = state.Next(StateFailed); err != nil || !state.Terminal() {
		t.Fatalf("expected terminal failed state, got %s %v", state, err)
	}
	if _, err := StateFailed.Next(StateMutating); err == nil {
		t.Fatalf("terminal states must not transition")
	}
}

type journalEntry struct {
	sagaID, step, detail string
	status               saga.StepStatus
}

type spyJournal struct {
	entries []journalEntry
}

func (s *spyJournal) AddStep(ctx context.Context, sagaID, step string, status saga.StepStatus, detail string) error {
	s.entries = append(s.entries, journalEntry{sagaID: sagaID, step: step, detail: detail, status: status})
	return nil
}

func TestJournalSink_Record(t *testing.T) {
	journal := &spyJournal{}
	sink := NewJournalSink(journal)
	ctx := context.Background()

	if err := sink.Record(ctx, Outcome{SagaID: "s1", Status: StateSucceeded, Courier: "c1"}); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := sink.Record(ctx, Outcome{SagaID: "s2", Status: StateFailed, Error: FailureCode}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := sink.Record(ctx, Outcome{Status: StateSucceeded}); err != nil {
		t.Fatalf("record without saga: %v", err)
	}

	if len(journal.entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", journal.entries)
	}
	if got := journal.entries[0]; got.step != JournalStep || got.status != saga.StepSucceeded || got.detail != "courier=c1" {
		t.Fatalf("unexpected success entry: %+v", got)
	}
	if got := journal.entries[1]; got.sagaID != "s2" || got.status != saga.StepFailed || got.detail != FailureCode {
		t.Fatalf("unexpected failure entry: %+v", got)
	}
}
