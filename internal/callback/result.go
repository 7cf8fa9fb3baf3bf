package callback

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the terminal state of a callback token.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

var (
	// ErrUnknownToken is returned for tokens that were never registered or already consumed.
	ErrUnknownToken = errors.New("unknown callback token")
	// ErrAlreadyResolved is returned when a token is resolved twice.
	ErrAlreadyResolved = errors.New("callback token already resolved")
	// ErrTokenExpired is returned when a token is not resolved within its TTL.
	ErrTokenExpired = errors.New("callback token expired")
)

// Result is what a resolved token carries back to the waiting orchestrator.
type Result struct {
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Cause  string          `json:"cause,omitempty"`
}

// Succeeded reports whether the token was resolved with success.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Decode unmarshals the success output into v.
func (r Result) Decode(v any) error {
	if !r.Succeeded() {
		return fmt.Errorf("callback failed: %s: %s", r.Error, r.Cause)
	}
	return json.Unmarshal(r.Output, v)
}

func successResult(output any) (Result, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return Result{}, fmt.Errorf("encode callback output: %w", err)
	}
	return Result{Status: StatusSucceeded, Output: raw}, nil
}

func failureResult(code, cause string) Result {
	return Result{Status: StatusFailed, Error: code, Cause: cause}
}
