package memory

import (
	"context"
	"sync"
)

// Store is an in-process key-value store. Values live as long as the process.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value under key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}
