package inmemkv

import (
	"context"
	"sync"

	"github.com/aurraa/classroom/core"
)

type store struct {
	mutex sync.RWMutex
	items map[string]string
}

var _ core.KeyValueStore = (*store)(nil)

// NewStore returns an in-memory core.KeyValueStore. Its content lives as long as the process.
func NewStore() core.KeyValueStore {
	return &store{items: make(map[string]string)}
}

func (s *store) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	val, ok := s.items[key]
	return val, ok, nil
}

func (s *store) SetItem(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.items[key] = value
	return nil
}

func (s *store) RemoveItem(_ context.Context, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}
