// Package tracker is the embeddable client that sites use to send analytics
// to the ingestion endpoint. It keeps visitor and session identity, throttles
// noisy callers, and emits page views, events, heartbeats, and durations as
// fire-and-forget requests.
package tracker

import "sync"

// Storage is a minimal key-value store. The visitor id lives in a durable
// store and the session id in a tab-scoped one; both are injected so hosts
// can back them with whatever persistence they have.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemoryStorage is a Storage backed by an in-process map. Used for tab-scoped
// state and in tests.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
