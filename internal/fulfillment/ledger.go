package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger remembers which callback tokens the worker has taken stock for, so
// a redelivered message replays its recorded outcome instead of mutating the
// store again.
type Ledger interface {
	// Claim marks token as being processed. It returns false when the token
	// was already claimed.
	Claim(ctx context.Context, token string) (bool, error)
	// Complete stores the terminal outcome of a claimed token.
	Complete(ctx context.Context, outcome Outcome) error
	// Lookup returns the stored outcome. ok is false while the token is
	// claimed but not completed.
	Lookup(ctx context.Context, token string) (outcome Outcome, ok bool, err error)
}

type ledgerEntry struct {
	outcome   *Outcome
	claimedAt time.Time
}

// MemoryLedger is a process-local Ledger. Entries are forgotten ttl after
// they were claimed.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]ledgerEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryLedger) Claim(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	if _, ok := m.entries[token]; ok {
		return false, nil
	}
	m.entries[token] = ledgerEntry{claimedAt: now}
	return true, nil
}

func (m *MemoryLedger) Complete(ctx context.Context, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[outcome.Token]
	if !ok {
		entry.claimedAt = m.now()
	}
	entry.outcome = &outcome
	m.entries[outcome.Token] = entry
	return nil
}

func (m *MemoryLedger) Lookup(ctx context.Context, token string) (Outcome, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[token]
	if !ok || entry.outcome == nil {
		return Outcome{}, false, nil
	}
	return *entry.outcome, true, nil
}

// Len returns the number of remembered tokens.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryLedger) sweep(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for token, entry := range m.entries {
		if now.Sub(entry.claimedAt) >= m.ttl {
			delete(m.entries, token)
		}
	}
}

// RedisLedgerClient is the minimal client surface used by RedisLedger.
type RedisLedgerClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

const claimedMarker = "claimed"

// RedisLedger shares processed tokens between worker replicas. A claim is a
// SETNX on fulfillment:done:<token>; completion overwrites it with the
// outcome as JSON.
type RedisLedger struct {
	client    RedisLedgerClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisLedger(client RedisLedgerClient, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, keyPrefix: "fulfillment:done:", ttl: ttl}
}

func (r *RedisLedger) Claim(ctx context.Context, token string) (bool, error) {
	return r.client.SetNX(ctx, r.keyPrefix+token, claimedMarker, r.ttl).Result()
}

func (r *RedisLedger) Complete(ctx context.Context, outcome Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.keyPrefix+outcome.Token, payload, r.ttl).Err()
}

func (r *RedisLedger) Lookup(ctx context.Context, token string) (Outcome, bool, error) {
	raw, err := r.client.Get(ctx, r.keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}
	if raw == claimedMarker {
		return Outcome{}, false, nil
	}
	var outcome Outcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return Outcome{}, false, err
	}
	return outcome, true, nil
}
