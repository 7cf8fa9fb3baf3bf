package callback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pending struct {
	done     chan struct{}
	result   Result
	err      error
	resolved bool
	timer    *time.Timer
}

// Registry is an in-process promise table keyed by callback token. The
// orchestrator registers a token, hands it to the asynchronous worker, and
// awaits it; the worker resolves it through the saga.Resolver methods.
type Registry struct {
	mu       sync.Mutex
	pending  map[string]*pending
	ttl      time.Duration
	newToken func() string
}

// NewRegistry constructs a Registry. Tokens are dropped ttl after
// registration whether or not anyone awaited them; an unresolved token fails
// its waiters with ErrTokenExpired. A non-positive ttl disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		pending:  make(map[string]*pending),
		ttl:      ttl,
		newToken: uuid.NewString,
	}
}

// Register creates a token whose resolution can be awaited.
func (r *Registry) Register() string {
	token := r.newToken()
	p := &pending{done: make(chan struct{})}

	r.mu.Lock()
	r.pending[token] = p
	if r.ttl > 0 {
		p.timer = time.AfterFunc(r.ttl, func() { r.expire(token) })
	}
	r.mu.Unlock()
	return token
}

// Pending returns the number of registered tokens not yet consumed.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Await blocks until the token is resolved, expires, or ctx ends. A token is
// consumed once its outcome has been returned.
func (r *Registry) Await(ctx context.Context, token string) (Result, error) {
	r.mu.Lock()
	p, ok := r.pending[token]
	r.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownToken
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	r.mu.Lock()
	if r.pending[token] == p {
		delete(r.pending, token)
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	r.mu.Unlock()
	return p.result, p.err
}

// ResolveSuccess completes the token with output.
func (r *Registry) ResolveSuccess(ctx context.Context, token string, output any) error {
	result, err := successResult(output)
	if err != nil {
		return err
	}
	return r.resolve(token, result)
}

// ResolveFailure completes the token with an error code and cause.
func (r *Registry) ResolveFailure(ctx context.Context, token, code, cause string) error {
	return r.resolve(token, failureResult(code, cause))
}

func (r *Registry) expire(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[token]
	if !ok {
		return
	}
	delete(r.pending, token)
	if !p.resolved {
		p.resolved = true
		p.err = ErrTokenExpired
		close(p.done)
	}
}

func (r *Registry) resolve(token string, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[token]
	if !ok {
		return ErrUnknownToken
	}
	if p.resolved {
		return ErrAlreadyResolved
	}
	p.resolved = true
	p.result = result
	close(p.done)
	return nil
}
