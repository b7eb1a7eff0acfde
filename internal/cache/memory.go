package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryKeys is the in-process fallback for idempotency keys when Redis is
// not configured. Expired keys are swept lazily on Claim.
type MemoryKeys struct {
	mu        sync.Mutex
	keys      map[string]time.Time // key -> expiry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryKeys creates an empty key set.
func NewMemoryKeys(ttl time.Duration) *MemoryKeys {
	return &MemoryKeys{
		keys: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim records key unless it is held and not yet expired.
func (m *MemoryKeys) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}

// Release forgets key.
func (m *MemoryKeys) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of held keys, expired ones included until swept.
func (m *MemoryKeys) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *MemoryKeys) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.ttl {
		return
	}
	m.lastSweep = now
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
		}
	}
}
