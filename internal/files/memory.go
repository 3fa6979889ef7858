package files

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"carlog/internal/carlog"
)

// MemoryStore is an in-memory FileStore, useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	files map[string][]byte
	mu    sync.RWMutex
}

var _ carlog.FileStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (m *MemoryStore) ImagePath(carID int64, name string) string {
	return path.Join("/images", carDir(carID), name)
}

func (m *MemoryStore) ThumbnailPath(carID int64, name string) string {
	return path.Join("/images", carDir(carID), "thumbnails", name)
}

func (m *MemoryStore) ReadFile(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) WriteFile(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[p]
	return ok
}

func (m *MemoryStore) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	return nil
}

func (m *MemoryStore) Size(p string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[p]
	if !ok {
		return 0, fmt.Errorf("file not found: %s", p)
	}
	return int64(len(data)), nil
}

// Paths returns every stored path in sorted order.
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
