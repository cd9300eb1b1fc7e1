package store

import (
	"context"
	"sync"
	"time"

	apperrors "order_lifecycle/pkg/errors"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements core.IKeyedStore in process memory. It is used in
// tests and single-worker development runs; TTLs are honored lazily on
// access.
type MemoryStore struct {
	mu    sync.Mutex
	kv    map[string]memoryEntry
	lists map[string][][]byte
	sets  map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]memoryEntry),
		lists: make(map[string][][]byte),
		sets:  make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.kv[key]
	if !ok || e.expired(time.Now()) {
		delete(s.kv, key)
		return nil, apperrors.ErrKeyNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

func (s *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = newEntry(value, ttl)
	return nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.kv[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}

	s.kv[key] = newEntry(value, ttl)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	delete(s.lists, key)
	delete(s.sets, key)
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.lists[key] = append(s.lists[key], v)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.lists[key]
	out := make([][]byte, len(src))
	for i, v := range src {
		c := make([]byte, len(v))
		copy(c, v)
		out[i] = c
	}
	return out, nil
}

func (s *MemoryStore) AddToSet(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	s.sets[key][member] = struct{}{}
	return nil
}

func (s *MemoryStore) IsMember(ctx context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func newEntry(value []byte, ttl time.Duration) memoryEntry {
	v := make([]byte, len(value))
	copy(v, value)

	e := memoryEntry{value: v}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}
