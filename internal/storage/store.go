package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore is the durable key-value store the device keeps its JSON
// documents in. Paths look like "/config.json".
type DocumentStore interface {
	Exists(path string) bool
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}

// FileStore keeps documents as files below a root directory.
type FileStore struct {
	root string
	lock sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) resolve(path string) (string, error) {
	name, err := SanitizeFilename(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid document path %q: %w", path, err)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FileStore) Exists(path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

func (s *FileStore) Read(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the document atomically: a crash leaves either the old or
// the new content, never a truncated file.
func (s *FileStore) Write(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// MemoryStore is a DocumentStore without persistence.
type MemoryStore struct {
	lock sync.Mutex
	docs map[string][]byte

	// FailWrites makes every Write return an error.
	FailWrites bool
	Writes     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(path string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.docs[path]
	return ok
}

func (m *MemoryStore) Read(path string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Write(path string, data []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.FailWrites {
		return fmt.Errorf("write %s: storage unavailable", path)
	}
	m.docs[path] = append([]byte(nil), data...)
	m.Writes++
	return nil
}
