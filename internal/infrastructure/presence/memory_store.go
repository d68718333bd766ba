package presence

import (
	"context"
	"sync"

	"scrapmart/internal/domain/entity"
)

// MemoryStore keeps presence in process memory. Presence is not shared
// between server instances; use RedisStore for that.
type MemoryStore struct {
	entries map[string]entity.PresenceEntry
	mutex   sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entity.PresenceEntry),
	}
}

func (s *MemoryStore) Register(ctx context.Context, entry entity.PresenceEntry) error {
	s.mutex.Lock()
	s.entries[entry.UserID] = entry
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Unregister(ctx context.Context, userID string) error {
	s.mutex.Lock()
	delete(s.entries, userID)
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, userID, connectionID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[userID]
	if !ok || entry.ConnectionID != connectionID {
		return false, nil
	}
	delete(s.entries, userID)
	return true, nil
}

// Touch is a no-op: memory entries never expire.
func (s *MemoryStore) Touch(ctx context.Context, userID, connectionID string) error {
	return nil
}

func (s *MemoryStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	s.mutex.RLock()
	_, ok := s.entries[userID]
	s.mutex.RUnlock()
	return ok, nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*entity.PresenceEntry, bool, error) {
	s.mutex.RLock()
	entry, ok := s.entries[userID]
	s.mutex.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}
