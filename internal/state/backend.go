// internal/state/backend.go
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend is the durable storage behind a Registry. The whole table is read
// and written as one blob; there are no partial writes.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileBackend stores the table in a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend writing to path. Parent directories are
// created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file path used by this backend.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read sessions file: %w", err)
	}
	return data, nil
}

// Save writes data atomically (temp file + rename).
func (f *FileBackend) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp sessions file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp sessions file: %w", err)
	}
	return nil
}

// MemoryBackend keeps the table in memory. SaveErr, when set, makes every
// Save fail without storing anything.
type MemoryBackend struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	SaveErr error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Set replaces the stored blob, simulating another writer.
func (m *MemoryBackend) Set(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

// Saves returns how many saves succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
