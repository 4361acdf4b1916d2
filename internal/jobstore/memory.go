package jobstore

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often a write scans for expired keys.
const sweepInterval = time.Minute

type memoryItem struct {
	value   string
	expires time.Time
}

type memoryBackend struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]memoryItem
	hashes map[string]map[string]string
	// hashExpires holds deadlines of hashes that were given a TTL.
	hashExpires map[string]time.Time
	lastSweep   time.Time
}

// NewMemoryStore returns a process-local store with the same expiry
// semantics as the Redis store.
func NewMemoryStore(opts Options) *Store {
	return newStore(newMemoryBackend(time.Now), opts)
}

func newMemoryBackend(now func() time.Time) *memoryBackend {
	return &memoryBackend{
		now:         now,
		values:      make(map[string]memoryItem),
		hashes:      make(map[string]map[string]string),
		hashExpires: make(map[string]time.Time),
	}
}

// sweep drops every expired value and hash. Lookups only evict the key they
// touch, so keys nobody reads again would otherwise stay forever. It must be
// called with mu held.
func (m *memoryBackend) sweep() {
	now := m.now()
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for key, item := range m.values {
		if !item.expires.IsZero() && !now.Before(item.expires) {
			delete(m.values, key)
		}
	}
	for key, exp := range m.hashExpires {
		if !now.Before(exp) {
			delete(m.hashes, key)
			delete(m.hashExpires, key)
		}
	}
}

// lookup must be called with mu held.
func (m *memoryBackend) lookup(key string) (memoryItem, bool) {
	item, ok := m.values[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.values, key)
		return memoryItem{}, false
	}
	return item, true
}

// hash must be called with mu held.
func (m *memoryBackend) hash(key string) (map[string]string, bool) {
	h, ok := m.hashes[key]
	if !ok {
		return nil, false
	}
	if exp, has := m.hashExpires[key]; has && !m.now().Before(exp) {
		delete(m.hashes, key)
		delete(m.hashExpires, key)
		return nil, false
	}
	return h, true
}

func (m *memoryBackend) get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok {
		return "", errMissing
	}
	return item.value, nil
}

func (m *memoryBackend) set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.values[key] = item
	return nil
}

func (m *memoryBackend) mget(_ context.Context, keys ...string) ([]string, []bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := make([]string, len(keys))
	found := make([]bool, len(keys))
	for i, key := range keys {
		if item, ok := m.lookup(key); ok {
			values[i] = item.value
			found[i] = true
		}
	}
	return values, found, nil
}

func (m *memoryBackend) del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := m.lookup(key); ok {
			delete(m.values, key)
			n++
		}
		if _, ok := m.hash(key); ok {
			delete(m.hashes, key)
			delete(m.hashExpires, key)
			n++
		}
	}
	return n, nil
}

func (m *memoryBackend) persist(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok {
		return errMissing
	}
	item.expires = time.Time{}
	m.values[key] = item
	return nil
}

func (m *memoryBackend) expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl <= 0 {
		return nil
	}
	if item, ok := m.lookup(key); ok {
		item.expires = m.now().Add(ttl)
		m.values[key] = item
	}
	if _, ok := m.hash(key); ok {
		m.hashExpires[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *memoryBackend) hsetnx(_ context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	h, ok := m.hash(key)
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	if _, exists := h[field]; exists {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *memoryBackend) hgetall(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _ := m.hash(key)
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *memoryBackend) hexists(_ context.Context, key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _ := m.hash(key)
	_, ok := h[field]
	return ok, nil
}

func (m *memoryBackend) hdel(_ context.Context, key, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hash(key)
	if !ok {
		return 0, nil
	}
	if _, exists := h[field]; !exists {
		return 0, nil
	}
	delete(h, field)
	return 1, nil
}

