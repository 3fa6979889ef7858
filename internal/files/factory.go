package files

import (
	"fmt"

	"carlog/internal/carlog"
	"carlog/internal/config"
)

// NewStoreFromConfig creates a FileStore based on the files config type.
func NewStoreFromConfig(cfg config.FilesConfig) (carlog.FileStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem file store requires root to be set")
		}
		s, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown file store type: %s", cfg.Type)
	}
}
