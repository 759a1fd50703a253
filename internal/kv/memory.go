package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	meta      *Metadata
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a concurrency-safe in-memory Store. It implements the
// Incrementer and Locker capabilities, which makes it a drop-in stand-in for
// the SQLite store in tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]memoryEntry
	counters map[string]counterEntry
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]memoryEntry),
		counters: make(map[string]counterEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, meta *Metadata) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryEntry{value: stored, meta: meta}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Increment implements the Incrementer capability.
func (s *MemoryStore) Increment(_ context.Context, key string, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || time.Now().After(entry.expiresAt) {
		entry = counterEntry{count: 0, expiresAt: expiresAt}
	}
	entry.count++
	s.counters[key] = entry
	return entry.count, nil
}

// PutIfAbsent implements the Locker capability.
func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.data[key]; ok {
		if entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt) {
			return false, nil
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	return true, nil
}
