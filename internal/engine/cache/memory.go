package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt int64
}

// Memory is the in-process backing, used by tests and single-shot runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if e.expiresAt <= time.Now().UnixMilli() {
		m.evictIfStale(key, e.expiresAt)
		return nil, nil
	}
	return e.value, nil
}

// evictIfStale removes the key only while it still holds the entry seen
// expired by the read path. A concurrent Set that refreshed the key in
// the meantime wins.
func (m *Memory) evictIfStale(key string, expiresAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[key]; ok && cur.expiresAt == expiresAt {
		delete(m.entries, key)
	}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl).UnixMilli()}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Cleanup(_ context.Context) error {
	now := time.Now().UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.expiresAt <= now {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of live plus not-yet-swept entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
