package app

import (
	"fmt"
	"os"
	"path/filepath"

	"carlog/internal/config"
	"carlog/internal/database"
)

// GetDefaults resolves where carlog keeps its config and data before any
// config file has been read. A carlog home directory holds:
//
//	carlog.db               the SQLite store of cars, activities and reminders
//	files/images/car_<id>/  activity photos and their thumbnails
//	backups/                backup_<timestamp>.zip archives
//	log/carlog.log          the operation log
//
// CARLOG_CONFIG_PATH overrides the config file (~/.config/carlog.toml) and
// CARLOG_HOME overrides the home directory (~/.local/share/carlog).
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("CARLOG_CONFIG_PATH", ".config", "carlog.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("CARLOG_HOME", ".local", "share", "carlog")
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig(baseDir)
	return map[string]string{
		"config_path":   configPath,
		"base_dir":      cfg.BaseDir,
		"database_path": filepath.Join(cfg.Database.DataDir, database.DatabaseFile),
		"files_dir":     cfg.Files.Root,
		"backup_dir":    cfg.Backup.Dir,
		"log_dir":       cfg.LogDir,
	}, nil
}

// envOrHome returns the value of env, or rel joined under the home directory.
func envOrHome(env string, rel ...string) (string, error) {
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", env, err)
	}
	return filepath.Join(append([]string{homeDir}, rel...)...), nil
}
