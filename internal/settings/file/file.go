// Package file is a [settings.Store] backed by a single JSON document on
// disk. Every write rewrites the document through a temporary file and an
// atomic rename, so a crash never leaves a half-written file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/urbansense/urbansense/internal/settings"
)

// Store persists settings in a JSON file mapping profile to key to value.
type Store struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]string
}

// Open reads path, creating parent directories as needed. A missing file is
// treated as empty and created on the first write.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("settings file: create dir: %w", err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("settings file: read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("settings file: decode %s: %w", path, err)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get implements settings.Store.
func (s *Store) Get(_ context.Context, profile, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[profile][key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

// Load implements settings.Store.
func (s *Store) Load(_ context.Context, profile string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data[profile]))
	maps.Copy(out, s.data[profile])
	return out, nil
}

// Set implements settings.Store.
func (s *Store) Set(_ context.Context, profile, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[profile][key]
	if s.data[profile] == nil {
		s.data[profile] = make(map[string]string)
	}
	s.data[profile][key] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.data[profile][key] = prev
		} else {
			delete(s.data[profile], key)
		}
		return err
	}
	return nil
}

// Delete implements settings.Store.
func (s *Store) Delete(_ context.Context, profile, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[profile][key]
	if !had {
		return nil
	}
	delete(s.data[profile], key)
	if err := s.flushLocked(); err != nil {
		s.data[profile][key] = prev
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("settings file: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("settings file: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("settings file: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("settings file: rename: %w", err)
	}
	return nil
}

var _ settings.Store = (*Store)(nil)
