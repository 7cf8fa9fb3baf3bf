package saga

import (
	"errors"
	"fmt"
)

// Kind names a failure of the saga protocol. Values are the codes the
// orchestrator matches on.
type Kind string

const (
	KindBookOutOfStock         Kind = "BookOutOfStock"
	KindBookNotFound           Kind = "BookNotFound"
	KindInsufficientRedemption Kind = "InsufficientRedemption"
	KindStoreError             Kind = "StoreError"
	KindNoCourierAvailable     Kind = "NoCourierAvailable"
)

// Sentinels usable with errors.Is against any *StepError of the same kind.
var (
	ErrBookOutOfStock         = &StepError{Kind: KindBookOutOfStock}
	ErrBookNotFound           = &StepError{Kind: KindBookNotFound}
	ErrInsufficientRedemption = &StepError{Kind: KindInsufficientRedemption}
	ErrStoreError             = &StepError{Kind: KindStoreError}
	ErrNoCourierAvailable     = &StepError{Kind: KindNoCourierAvailable}
)

// ErrInvalidQuantity rejects an order line whose quantity is not positive.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// StepError is the failure returned by a saga step.
type StepError struct {
	Kind    Kind
	Step    string
	Message string
	Err     error
}

func (e *StepError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Step != "" {
		msg = e.Step + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// Is matches another *StepError by kind.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the orchestrator may retry the step.
// Business rule violations are terminal.
func (e *StepError) Retryable() bool {
	return e.Kind == KindStoreError
}

// NewStepError builds a StepError.
func NewStepError(kind Kind, step, message string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Message: message, Err: err}
}

// KindOf extracts the kind of a step failure, or "" if err is not one.
func KindOf(err error) Kind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
