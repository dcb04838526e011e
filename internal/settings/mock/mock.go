// Package mock provides a test double for settings.Store.
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/urbansense/urbansense/internal/settings"
)

// Call records one Set or Delete.
type Call struct {
	Op      string
	Profile string
	Key     string
	Value   string
}

// Store is a mock implementation of settings.Store backed by a map.
type Store struct {
	mu sync.Mutex

	// Data is the initial content, keyed by profile then key.
	Data map[string]map[string]string

	// LoadErr, if non-nil, is returned by Load and Get.
	LoadErr error

	// SetErr, if non-nil, is returned by Set and Delete.
	SetErr error

	// Calls records every write in order.
	Calls []Call
}

// Get implements settings.Store.
func (s *Store) Get(_ context.Context, profile, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return "", s.LoadErr
	}
	v, ok := s.Data[profile][key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

// Load implements settings.Store.
func (s *Store) Load(_ context.Context, profile string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	out := make(map[string]string)
	maps.Copy(out, s.Data[profile])
	return out, nil
}

// Set implements settings.Store.
func (s *Store) Set(_ context.Context, profile, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Op: "set", Profile: profile, Key: key, Value: value})
	if s.SetErr != nil {
		return s.SetErr
	}
	if s.Data == nil {
		s.Data = make(map[string]map[string]string)
	}
	if s.Data[profile] == nil {
		s.Data[profile] = make(map[string]string)
	}
	s.Data[profile][key] = value
	return nil
}

// Delete implements settings.Store.
func (s *Store) Delete(_ context.Context, profile, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Op: "delete", Profile: profile, Key: key})
	if s.SetErr != nil {
		return s.SetErr
	}
	delete(s.Data[profile], key)
	return nil
}

// Value returns the stored value of key and whether it exists.
func (s *Store) Value(profile, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Data[profile][key]
	return v, ok
}

// CallCount returns the number of writes recorded.
func (s *Store) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

var _ settings.Store = (*Store)(nil)
