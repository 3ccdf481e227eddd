package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	username  string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Suitable for single-instance
// deployments and tests; swap in RedisStore to share sessions across processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore builds an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, token, username string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = memoryEntry{username: username, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Lookup(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[token]
	m.mu.RUnlock()
	if !ok {
		return "", nil
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, token)
		m.mu.Unlock()
		return "", nil
	}
	return entry.username, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

// StartSweeper removes expired entries periodically until ctx is cancelled.
// Lookup already drops expired tokens lazily; the sweeper bounds memory for
// tokens that are never presented again.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.mu.Lock()
				for token, entry := range m.entries {
					if now.After(entry.expiresAt) {
						delete(m.entries, token)
					}
				}
				m.mu.Unlock()
			}
		}
	}()
}
