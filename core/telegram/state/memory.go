package state

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewMemoryStore constructs an in-process Store. It never returns errors.
func NewMemoryStore() Store {
	return &memoryStore{states: make(map[int64]State)}
}

// Get returns the state for a user, or Empty if none is stored.
func (m *memoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[userID]; ok {
		return st, nil
	}
	return Empty{}, nil
}

// Set replaces the state for a user. Empty clears the entry.
func (m *memoryStore) Set(_ context.Context, userID int64, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if IsEmpty(st) {
		delete(m.states, userID)
		return nil
	}
	m.states[userID] = st
	return nil
}

// Len reports the number of users with a non-empty state.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
