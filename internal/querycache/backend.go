package querycache

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

// Entry is one stored read. Value is kept byte-exact so a rollback can restore it verbatim.
type Entry struct {
	Value    []byte
	StoredAt time.Time
	Stale    bool
}

func (e Entry) clone() Entry {
	return Entry{Value: bytes.Clone(e.Value), StoredAt: e.StoredAt, Stale: e.Stale}
}

// Backend is the storage behind a Cache.
type Backend interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	// MarkStale flags existing entries as stale without dropping their values.
	MarkStale(ctx context.Context, keys ...string) error
	// MarkStalePrefix flags every entry whose key starts with prefix and returns how many.
	MarkStalePrefix(ctx context.Context, prefix string) (int, error)
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryBackend keeps entries in process. It is the default when Redis is disabled.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryBackend creates a backend whose entries are dropped ttl after their last write. Zero ttl keeps them forever.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryBackend) expired(it memoryItem) bool {
	return !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt)
}

func (m *MemoryBackend) Load(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if m.expired(it) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && m.expired(cur) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return it.entry.clone(), true, nil
}

func (m *MemoryBackend) Store(_ context.Context, key string, e Entry) error {
	it := memoryItem{entry: e.clone()}
	if m.ttl > 0 {
		it.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) MarkStale(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if it, ok := m.items[k]; ok {
			it.entry.Stale = true
			m.items[k] = it
		}
	}
	return nil
}

func (m *MemoryBackend) MarkStalePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if m.expired(it) {
			delete(m.items, k)
			continue
		}
		it.entry.Stale = true
		m.items[k] = it
		n++
	}
	return n, nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
