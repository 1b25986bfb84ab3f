// Package preference persists the dark-mode choice across runs.
package preference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"go-tonesense/internal/logger"
)

// Preferences is the on-disk document
type Preferences struct {
	Dark bool `yaml:"dark"`
}

// Store keeps the preference in memory and writes through on every change.
// Writes are serialized, so the last Set wins.
type Store struct {
	path  string
	mu    sync.Mutex
	prefs Preferences
}

// Load reads path, falling back to dark when the file does not exist yet.
// A malformed file is an error rather than a silent reset.
func Load(path string, dark bool) (*Store, error) {
	s := &Store{path: path, prefs: Preferences{Dark: dark}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}

	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parsing preferences %s: %w", path, err)
	}
	s.prefs = prefs
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Get returns the current preferences
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// SetDark stores the preference. The in-memory value only changes once the
// file has been replaced.
func (s *Store) SetDark(dark bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Preferences{Dark: dark}
	if err := writeAtomic(s.path, next); err != nil {
		return err
	}
	s.prefs = next

	logger.WithField("dark", dark).Debug("Preferences saved")
	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it
// over path
func writeAtomic(path string, prefs Preferences) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}

	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshalling preferences: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}
