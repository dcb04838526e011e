// Package memory is an in-process [settings.Store]. Values are lost when the
// process exits.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/urbansense/urbansense/internal/settings"
)

// Store keeps settings in a map.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]map[string]string)}
}

// Get implements settings.Store.
func (s *Store) Get(_ context.Context, profile, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[profile][key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

// Load implements settings.Store.
func (s *Store) Load(_ context.Context, profile string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data[profile]))
	maps.Copy(out, s.data[profile])
	return out, nil
}

// Set implements settings.Store.
func (s *Store) Set(_ context.Context, profile, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[profile] == nil {
		s.data[profile] = make(map[string]string)
	}
	s.data[profile][key] = value
	return nil
}

// Delete implements settings.Store.
func (s *Store) Delete(_ context.Context, profile, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[profile], key)
	return nil
}

var _ settings.Store = (*Store)(nil)
