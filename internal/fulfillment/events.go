package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"booksaga/internal/orders/saga"
)

// JournalStep is the step name fulfillment outcomes are journaled under.
const JournalStep = "fulfill"

// Outcome is the final result of one fulfillment message.
type Outcome struct {
	Token    string
	SagaID   string
	BookID   string
	Quantity int64
	Status   State
	Courier  string
	Error    string
	At       time.Time
}

// EventPublisher receives every terminal fulfillment outcome.
type EventPublisher interface {
	Publish(ctx context.Context, outcome Outcome) error
}

// OutcomeSink persists fulfillment outcomes.
type OutcomeSink interface {
	Record(ctx context.Context, outcome Outcome) error
}

// Broadcaster pushes messages to connected clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// FanoutPublisher writes outcomes to a sink then broadcasts them.
type FanoutPublisher struct {
	sink        OutcomeSink
	broadcaster Broadcaster
}

// NewFanoutPublisher constructs a publisher that fans out to a sink and a
// broadcaster. Either may be nil.
func NewFanoutPublisher(sink OutcomeSink, broadcaster Broadcaster) *FanoutPublisher {
	return &FanoutPublisher{sink: sink, broadcaster: broadcaster}
}

// Publish records the outcome then broadcasts it as JSON.
func (p *FanoutPublisher) Publish(ctx context.Context, outcome Outcome) error {
	if p.sink != nil {
		if err := p.sink.Record(ctx, outcome); err != nil {
			return err
		}
	}
	if p.broadcaster == nil {
		return nil
	}

	data, err := EncodeOutcome(outcome)
	if err != nil {
		return err
	}
	p.broadcaster.Broadcast(data)
	return nil
}

// EncodeOutcome renders the websocket payload for an outcome.
func EncodeOutcome(outcome Outcome) ([]byte, error) {
	payload := struct {
		Type     string `json:"type"`
		BookID   string `json:"book_id"`
		Quantity int64  `json:"quantity"`
		Status   State  `json:"status"`
		Courier  string `json:"courier,omitempty"`
		Error    string `json:"error,omitempty"`
	}{
		Type:     "fulfillment",
		BookID:   outcome.BookID,
		Quantity: outcome.Quantity,
		Status:   outcome.Status,
		Courier:  outcome.Courier,
		Error:    outcome.Error,
	}
	return json.Marshal(payload)
}

// MultiSink writes to multiple sinks in order.
type MultiSink struct {
	sinks []OutcomeSink
}

// NewMultiSink constructs a sink that records to each sink in sequence.
func NewMultiSink(sinks ...OutcomeSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record forwards the outcome to each sink, collecting errors so all sinks get a chance to write.
func (m *MultiSink) Record(ctx context.Context, outcome Outcome) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JournalSink records outcomes in the saga step journal under the "fulfill"
// step. Outcomes without a saga ID are skipped.
type JournalSink struct {
	journal saga.StepJournal
}

// NewJournalSink constructs a journal-backed sink.
func NewJournalSink(journal saga.StepJournal) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Record(ctx context.Context, outcome Outcome) error {
	if outcome.SagaID == "" {
		return nil
	}
	status, detail := saga.StepSucceeded, "courier="+outcome.Courier
	if outcome.Status == StateFailed {
		status, detail = saga.StepFailed, outcome.Error
	}
	return s.journal.AddStep(ctx, outcome.SagaID, JournalStep, status, detail)
}
