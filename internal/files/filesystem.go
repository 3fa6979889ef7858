package files

import (
	"fmt"
	"os"
	"path/filepath"

	"carlog/internal/carlog"
)

// FileSystemStore keeps image files in a directory tree:
//
//	<root>/
//	  images/
//	    car_<id>/
//	      <name>            (full-size images)
//	      thumbnails/
//	        <name>
//
// Paths handed to ReadFile, Exists, Delete and Size are used as given, so
// rows recorded before the store moved still resolve.
type FileSystemStore struct {
	root string
}

var _ carlog.FileStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at root.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "images"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) ImagePath(carID int64, name string) string {
	return filepath.Join(s.root, "images", carDir(carID), name)
}

func (s *FileSystemStore) ThumbnailPath(carID int64, name string) string {
	return filepath.Join(s.root, "images", carDir(carID), "thumbnails", name)
}

func (s *FileSystemStore) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// WriteFile writes data using an atomic write (temp file + rename).
func (s *FileSystemStore) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := tmpFile.Write(data)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != len(data) {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", len(data), written)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

func (s *FileSystemStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *FileSystemStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

func carDir(carID int64) string {
	return fmt.Sprintf("car_%d", carID)
}
