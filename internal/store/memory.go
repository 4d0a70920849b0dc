package store

import (
	"sync"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// InMemoryStore keeps credentials for the lifetime of the process. It backs
// --ephemeral sessions and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	creds *models.Credentials
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Load implements TokenStore.
func (s *InMemoryStore) Load() (*models.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, ErrNoCredentials
	}
	c := *s.creds
	return &c, nil
}

// Save implements TokenStore.
func (s *InMemoryStore) Save(creds models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
	return nil
}

// Clear implements TokenStore.
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

// Close implements TokenStore.
func (s *InMemoryStore) Close() error { return nil }
