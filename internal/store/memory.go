package store

import (
	"context"
	"sync"
)

// Memory is an in-memory implementation of Store using maps with mutex
// protection.
//
// WARNING: not suitable for distributed deployments. Each instance keeps
// its own state, so products, subscriptions, and usage counters are not
// shared across instances.
//
// Use Memory only for local development and tests. Production deployments
// should use the Redis store.
type Memory struct {
	mu       sync.RWMutex
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	counters map[string]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]int64),
	}
}

// HashSet upserts a field within the named hash.
//
// Note: the context parameter is accepted for interface compatibility but
// is not used. In-memory operations complete immediately.
func (m *Memory) HashSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

// HashGet reads a field from the named hash.
func (m *Memory) HashGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.hashes[key][field]
	return val, ok, nil
}

// SetAdd adds a member to the named set.
func (m *Memory) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	s[member] = struct{}{}
	return nil
}

// SetPick returns an arbitrary member of the named set. Go map iteration
// order is already non-deterministic, which matches the contract.
func (m *Memory) SetPick(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for member := range m.sets[key] {
		return member, true, nil
	}
	return "", false, nil
}

// Incr atomically increments the named counter. The write lock makes the
// increment atomic under concurrent load.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key]++
	return m.counters[key], nil
}

// IncrBelow atomically increments the named counter only while it is
// below ceiling.
func (m *Memory) IncrBelow(_ context.Context, key string, ceiling int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.counters[key]
	if count >= ceiling {
		return count, false, nil
	}
	m.counters[key] = count + 1
	return count + 1, true, nil
}

// GetInt reads the named integer value.
func (m *Memory) GetInt(_ context.Context, key string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.counters[key]
	return val, ok, nil
}

// SetInt writes the named integer value.
func (m *Memory) SetInt(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key] = value
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(_ context.Context) error {
	return nil
}

// Close releases nothing; the in-memory store holds no external resources.
func (m *Memory) Close() error {
	return nil
}
