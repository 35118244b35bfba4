package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is an in-process cache with per-entry TTL and LRU eviction once
// maxEntries is exceeded. Expired entries are removed lazily on access.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	evictions  int64
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a store capped at maxEntries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key if present and unexpired, refreshing its LRU
// position.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, false
	}

	s.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key for ttl, evicting the least recently used
// entries when over capacity.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		s.order.MoveToFront(elem)
		return
	}

	elem := s.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	s.items[key] = elem

	for len(s.items) > s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
		s.evictions++
	}
}

// Delete removes key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
}

// DeletePattern removes all keys matching a path glob pattern and returns the
// number removed.
func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.items {
		if matched, err := path.Match(pattern, key); err == nil && matched {
			s.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the current entry count, excluding lazily expired entries still
// resident.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evictions returns the number of entries evicted by the LRU cap.
func (s *MemoryStore) Evictions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(s.items, entry.key)
	s.order.Remove(elem)
}
