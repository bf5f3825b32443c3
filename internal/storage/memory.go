package storage

import (
	"sync"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps values for the lifetime of the process only.
// Useful for kiosk-style runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore creates an empty store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (s *MemoryStore) Write(batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range batch.Delete {
		s.cache.Delete(key)
	}
	for key, value := range batch.Set {
		s.cache.Set(key, value, cache.NoExpiration)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
