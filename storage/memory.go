package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	writes map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string][]byte),
		writes: make(map[string]int),
	}
}

// ReadJSON implements Store.
func (s *MemoryStore) ReadJSON(_ context.Context, p string, out any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	s.mu.RLock()
	data, ok := s.docs[cleaned]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return decode(cleaned, data, out)
}

// WriteJSON implements Store.
func (s *MemoryStore) WriteJSON(_ context.Context, p string, v any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[cleaned] = data
	s.writes[cleaned]++
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, cleaned)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Has reports whether a document exists at p.
func (s *MemoryStore) Has(p string) bool {
	cleaned, err := cleanPath(p)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[cleaned]
	return ok
}

// Writes returns how many times the document at p was written.
func (s *MemoryStore) Writes(p string) int {
	cleaned, err := cleanPath(p)
	if err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[cleaned]
}
