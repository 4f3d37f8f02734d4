package session

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kaiseki/internal/models"
)

type memoryEntry struct {
	snapshot  *models.Snapshot
	expiresAt time.Time
}

// MemoryStore keeps sessions in a process-local map. Expired entries are
// dropped lazily on access and on every save.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an in-process store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(ctx context.Context, snapshot *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
	m.sessions[snapshot.SessionID] = memoryEntry{
		snapshot:  snapshot.Clone(),
		expiresAt: now.Add(m.ttl),
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return entry.snapshot.Clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports the number of live sessions, for status reporting.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	now := m.now()
	for _, entry := range m.sessions {
		if !now.After(entry.expiresAt) {
			n++
		}
	}
	return n
}
