package credstore

import "sync"

// MemoryStore keeps the credential pair in memory. Useful for tests and for
// short-lived processes that should not leave tokens on disk.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
	set   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.creds.Empty() {
		return Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

// Save implements Store.
func (s *MemoryStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.set = false
	return nil
}
