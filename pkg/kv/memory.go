package kv

import "sync"

// MemDB implements DB entirely in memory. Intended for tests and as a
// stand-in where durability is not required.
type MemDB struct {
	mu     sync.RWMutex
	scopes map[string]*memStore
}

// NewMem creates an empty in-memory database.
func NewMem() *MemDB {
	return &MemDB{scopes: make(map[string]*memStore)}
}

// Store returns the named scope, creating it if needed.
func (m *MemDB) Store(name string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[name]
	if !ok {
		s = &memStore{data: make(map[string][]byte)}
		m.scopes[name] = s
	}
	return s, nil
}

// Close is a no-op for the in-memory database.
func (m *MemDB) Close() error {
	return nil
}

type memStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (s *memStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
