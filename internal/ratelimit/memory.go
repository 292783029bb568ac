package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count       int
	windowStart time.Time
}

// MemoryStore keeps counters in a mutex-guarded map. Single-node deployments
// and tests; each instance is fully isolated.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) TryIncrement(ctx context.Context, key Key, bound int, now time.Time) (Result, error) {
	ws := WindowStart(key.Kind, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key.String()]
	if !ok || IsStale(ent.windowStart, key.Kind, now) {
		ent = &memoryEntry{count: 0, windowStart: ws}
	}

	if ent.count+1 > bound {
		return Result{Allowed: false, CountAfter: ent.count}, nil
	}

	ent.count++
	ent.windowStart = ws
	s.entries[key.String()] = ent

	return Result{Allowed: true, CountAfter: ent.count}, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key Key, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key.String()] = &memoryEntry{
		count:       0,
		windowStart: WindowStart(key.Kind, now),
	}
	return nil
}

func (s *MemoryStore) Peek(ctx context.Context, key Key, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key.String()]
	if !ok || IsStale(ent.windowStart, key.Kind, now) {
		return 0, nil
	}
	return ent.count, nil
}
