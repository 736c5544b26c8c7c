package simon

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory StatsStore.
type MemoryStore struct {
	mu    sync.Mutex
	stats Stats
	saves int
	err   error
}

// NewMemoryStore creates a store holding s.
func NewMemoryStore(s Stats) *MemoryStore {
	return &MemoryStore{stats: s}
}

// SetError makes store calls fail with err.
func (m *MemoryStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) LoadStats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.err
}

func (m *MemoryStore) SaveStats(ctx context.Context, s Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stats = s
	m.saves++
	return nil
}

// Saves returns how many times SaveStats succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
