package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a session id has no stored state.
var ErrNotFound = errors.New("session not found")

// ErrExists is returned by Create when the id is already taken.
var ErrExists = errors.New("session already exists")

// Store owns the canonical copy of every session state. The engine borrows a
// state for one message's processing and writes the whole thing back at the
// end; no other component keeps a reference across calls.
//
// Implementations must serialize concurrent create/delete of the same id but
// let unrelated ids proceed independently. No implicit expiry.
type Store interface {
	Create(ctx context.Context, state *State) error
	Get(ctx context.Context, id string) (*State, error)
	Update(ctx context.Context, state *State) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the in-memory Store used by tests and single-process runs.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

func (m *MemoryStore) Create(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.SessionID]; ok {
		return ErrExists
	}
	m.states[state.SessionID] = state.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.SessionID]; !ok {
		return ErrNotFound
	}
	m.states[state.SessionID] = state.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return ErrNotFound
	}
	delete(m.states, id)
	return nil
}

// IDs returns all stored session ids, in no particular order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}
