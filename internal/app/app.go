package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"carlog/internal/archive"
	"carlog/internal/carlog"
	"carlog/internal/config"
	"carlog/internal/database"
	"carlog/internal/files"
	"carlog/internal/model"
)

// CarlogApp is the application layer between the CLI and carlog.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the store lifecycle on Close.
type CarlogApp struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	files   carlog.FileStore
	service *carlog.Service
	logger  carlog.Logger
	op      *Operation
	logFile *os.File
}

// NewCarlogApp creates a fully wired CarlogApp from the given config.
// operation identifies the CLI command being run (e.g. "CreateBackup").
// The caller must call Close when done.
func NewCarlogApp(cfg *config.Config, operation string) (*CarlogApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fileStore, err := files.NewStoreFromConfig(cfg.Files)
	if err != nil {
		return nil, fmt.Errorf("creating file store: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating data store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, opID, slog.LevelWarn)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	svc := carlog.NewService(store, fileStore, archive.NewZipCodec(logger), logger,
		carlog.RealClock{}, carlog.UUIDGenerator{}, carlog.Options{
			BackupDir:         cfg.Backup.Dir,
			Keep:              cfg.Backup.Keep,
			PreRestoreArchive: cfg.Backup.PreRestoreSnapshot,
		})

	return &CarlogApp{
		cfg:     cfg,
		store:   store,
		files:   fileStore,
		service: svc,
		logger:  logger,
		op:      NewOperation(operation, ""),
		logFile: logFile,
	}, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// Only commands that change the store or write archives call it.
func (a *CarlogApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.store.CreateOperation(a.op.Name, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// AddCar validates and stores a new car, returning its identifier.
func (a *CarlogApp) AddCar(car *model.Car) (int64, error) {
	if err := carlog.ValidateCar(car); err != nil {
		return 0, err
	}
	if err := a.persistOperation(fmt.Sprintf("%s %s %d", car.Brand, car.Model, car.Year)); err != nil {
		return 0, err
	}
	if car.CreatedAt == 0 {
		car.CreatedAt = time.Now().UnixMilli()
	}
	id, err := a.store.InsertCar(car)
	return id, a.op.Record(err)
}

// ListCars returns every car in the store.
func (a *CarlogApp) ListCars() ([]*model.Car, error) {
	return a.store.ListCars()
}

// CreateBackup archives the whole store into the configured backups directory.
func (a *CarlogApp) CreateBackup(ctx context.Context) (*carlog.BackupResult, error) {
	if err := a.persistOperation(a.cfg.Backup.Dir); err != nil {
		return nil, err
	}
	res, err := a.service.CreateBackup(ctx)
	return res, a.op.Record(err)
}

// RestoreBackup resolves rawPath and replaces the store's content with the archive.
func (a *CarlogApp) RestoreBackup(ctx context.Context, rawPath string) (*carlog.RestoreResult, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if err := a.persistOperation(p); err != nil {
		return nil, err
	}
	res, err := a.service.RestoreBackup(ctx, p)
	return res, a.op.Record(err)
}

// ValidateBackup checks an archive without touching the store.
func (a *CarlogApp) ValidateBackup(rawPath string) (bool, string, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return false, "", fmt.Errorf("resolving path: %w", err)
	}
	ok, msg := a.service.ValidateArchive(p)
	return ok, msg, nil
}

// BackupInfo summarizes an archive.
func (a *CarlogApp) BackupInfo(rawPath string) (map[string]string, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.GetBackupInfo(p)
}

// ListBackups returns the archives in the backups directory, newest first.
func (a *CarlogApp) ListBackups() ([]*carlog.BackupInfo, error) {
	return a.service.ListBackups()
}

// PruneBackups keeps the newest keep archives. A negative keep uses the
// configured retention.
func (a *CarlogApp) PruneBackups(keep int) (int, error) {
	if keep < 0 {
		keep = a.cfg.Backup.Keep
	}
	if err := a.persistOperation(strconv.Itoa(keep)); err != nil {
		return 0, err
	}
	n, err := a.service.PruneBackups(keep)
	return n, a.op.Record(err)
}

// EstimateBackupSize returns the approximate size of a backup taken now.
func (a *CarlogApp) EstimateBackupSize() (int64, error) {
	return a.service.EstimateBackupSize()
}

// GetHistory returns the most recent recorded operations.
func (a *CarlogApp) GetHistory(limit int) ([]*model.Operation, error) {
	return a.store.ListOperations(limit)
}

// Close finalizes the operation record and closes all resources.
func (a *CarlogApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
		a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status)
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing data store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
