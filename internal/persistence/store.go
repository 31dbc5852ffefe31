package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Load when the persistence file does not
// exist yet; callers should treat it the same as an empty State.
var ErrNotFound = errors.New("persistence: file does not exist")

// Store is a file-backed repository for a single persistence.json
// document, synchronous like the teacher's FileStore.
type Store struct {
	mu   sync.Mutex
	path string
	perm os.FileMode
}

// NewStore opens a Store rooted at path, creating its parent directory if
// necessary.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: creating directory %s: %w", dir, err)
	}
	return &Store{path: path, perm: 0o644}, nil
}

// Load reads and decodes the persistence file. If it does not exist, Load
// returns a zero State and ErrNotFound rather than an error callers must
// special-case for every field.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("persistence: reading %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("persistence: unmarshaling %s: %w", s.path, err)
	}
	return state, nil
}

// Save encodes the full state, writes it to a sibling temporary file and
// renames that over the persistence file, so readers never see a partly
// written document.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshaling state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, s.perm); err != nil {
		return fmt.Errorf("persistence: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persistence: replacing %s: %w", s.path, err)
	}
	return nil
}
