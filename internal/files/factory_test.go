package files

import (
	"path/filepath"
	"testing"

	"carlog/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.FilesConfig
		wantErr bool
	}{
		{name: "memory store", cfg: config.FilesConfig{Type: "memory"}},
		{name: "filesystem store", cfg: config.FilesConfig{Type: "filesystem", Root: filepath.Join(t.TempDir(), "files")}},
		{name: "filesystem store without root", cfg: config.FilesConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown type", cfg: config.FilesConfig{Type: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && got != nil {
				t.Error("NewStoreFromConfig() should return nil on error")
			}
			if !tt.wantErr && got == nil {
				t.Error("NewStoreFromConfig() returned nil")
			}
		})
	}
}
