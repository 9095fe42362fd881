package tenant

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]Settings
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Settings{}, clock: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rows[userID]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Settings) (Settings, error) {
	s, err := s.Normalize()
	if err != nil {
		return Settings{}, err
	}
	now := m.clock().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rows[s.UserID]; ok {
		s.CreatedAt = prev.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.rows[s.UserID] = s
	return s, nil
}
