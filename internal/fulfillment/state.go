package fulfillment

import "fmt"

// State is the lifecycle of one fulfillment message.
type State string

const (
	StateReceived  State = "received"
	StateMutating  State = "mutating"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateReceived: {StateMutating},
	StateMutating: {StateSucceeded, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Next validates and performs the transition from s to to.
func (s State) Next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("invalid fulfillment transition %s -> %s", s, to)
}
