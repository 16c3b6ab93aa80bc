package snapshot

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend is an in-process Backend with a byte quota shared by all keys,
// the way browser storage counts keys and values against one origin budget.
type MemoryBackend struct {
	mu    sync.RWMutex
	quota int
	db    map[string][]byte
}

// NewMemoryBackend creates a MemoryBackend. A quota <= 0 disables the limit.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{
		quota: quota,
		db:    make(map[string][]byte),
	}
}

// Load returns a copy of the stored value.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.db[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save stores the blob unless the total usage would exceed the quota.
func (m *MemoryBackend) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := m.usageLocked() - m.sizeLocked(key) + len(key) + len(blob)
		if used > m.quota {
			return fmt.Errorf("%w: %d bytes over %d", ErrQuotaExceeded, used, m.quota)
		}
	}

	m.db[key] = append([]byte(nil), blob...)
	return nil
}

// Delete removes the key.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.db, key)
	return nil
}

// Usage returns the bytes currently counted against the quota.
func (m *MemoryBackend) Usage() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageLocked()
}

func (m *MemoryBackend) usageLocked() int {
	total := 0
	for k, v := range m.db {
		total += len(k) + len(v)
	}
	return total
}

func (m *MemoryBackend) sizeLocked(key string) int {
	v, ok := m.db[key]
	if !ok {
		return 0
	}
	return len(key) + len(v)
}
