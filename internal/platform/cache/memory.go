package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	entry    Entry
	deleteAt time.Time
}

// Memory is an in-process Backend. Entries are dropped once their retention
// window has passed, either lazily on read or by Prune.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	Now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem), Now: time.Now}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(item.deleteAt) {
		delete(m.items, key)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, entry Entry, retain time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{entry: entry, deleteAt: entry.StoredAt.Add(retain)}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

// Prune removes entries past their retention window and reports how many
// were removed.
func (m *Memory) Prune(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, item := range m.items {
		if !now.Before(item.deleteAt) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
