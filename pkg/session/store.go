package session

import (
	"context"
	"sync"
)

// Store persists sessions. Update is a compare-and-swap on Version: it
// fails with ErrVersionConflict unless the stored version equals
// expectedVersion, and on success stores s with Version expectedVersion+1.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session, expectedVersion int64) error
}

// MemoryStore is a single-instance Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create implements Store
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrVersionConflict
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update implements Store
func (m *MemoryStore) Update(ctx context.Context, s *Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	s.Version = expectedVersion + 1
	m.sessions[s.ID] = s.Clone()
	return nil
}
