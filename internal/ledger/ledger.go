// Package ledger records transaction tokens that were already used to
// complete a purchase, so a replayed redirect cannot complete it twice.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrEmptyToken = errors.New("ledger: token is empty")

// Ledger consumes a token exactly once per backend. duplicate is true when
// the token was consumed before.
type Ledger interface {
	Consume(ctx context.Context, backend, token string) (duplicate bool, err error)
}

// DefaultMemoryTTL matches the lifetime of a signed resume state: a token
// older than that cannot complete a purchase anyway.
const DefaultMemoryTTL = 24 * time.Hour

// Memory is a process-local ledger. It only protects a single instance.
// Entries are forgotten after ttl and swept as new tokens arrive.
type Memory struct {
	mu        sync.Mutex
	consumed  map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

type MemoryOption func(*Memory)

// WithTTL sets how long a consumed token is remembered. Non-positive values
// keep the default.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{consumed: make(map[string]time.Time), ttl: DefaultMemoryTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Consume(_ context.Context, backend, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	key := backend + "#" + token

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	if at, ok := m.consumed[key]; ok && now.Sub(at) < m.ttl {
		return true, nil
	}
	m.consumed[key] = now
	return false, nil
}

// sweep drops expired entries at most once per ttl/2. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for k, at := range m.consumed {
		if now.Sub(at) >= m.ttl {
			delete(m.consumed, k)
		}
	}
	m.nextSweep = now.Add(m.ttl / 2)
}

// Len is the number of consumed tokens.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumed)
}
