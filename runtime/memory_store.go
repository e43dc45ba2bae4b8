package runtime

import (
	"comm-rendezvous/domain"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore is the default contract.Store: a plain map living as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.SessionID]domain.Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.SessionID]domain.Entry)}
}

func (m *MemoryStore) Load(sessionID domain.SessionID) (domain.Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[sessionID]
	if !ok {
		return domain.Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (m *MemoryStore) Save(sessionID domain.SessionID, entry domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = cloneEntry(entry)
	return nil
}

func (m *MemoryStore) Delete(sessionID domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryStore) Keys() ([]domain.SessionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.entries), nil
}

// cloneEntry returns a copy that shares no memory with the original,
// so callers can never mutate stored entries.
func cloneEntry(e domain.Entry) domain.Entry {
	return domain.Entry{
		GroupID:   e.GroupID.Clone(),
		Rank:      e.Rank,
		Size:      e.Size,
		Endpoints: append([]domain.Endpoint(nil), e.Endpoints...),
	}
}
