package arr

import (
	"context"
	"sync"
	"time"
)

// PageCache stores history pages for a short time so concurrent import
// watchers share upstream requests.
type PageCache interface {
	Get(ctx context.Context, key string) (HistoryPage, bool, error)
	Set(ctx context.Context, key string, page HistoryPage, ttl time.Duration) error
}

type memoryEntry struct {
	page      HistoryPage
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) (HistoryPage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return HistoryPage{}, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return HistoryPage{}, false, nil
	}
	return entry.page, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, page HistoryPage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{page: page, expiresAt: now.Add(ttl)}
	return nil
}
