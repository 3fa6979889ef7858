package carlog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures a Service.
type Options struct {
	// BackupDir is where archives are created and listed.
	BackupDir string
	// Keep is the number of archives retained after each backup. 0 keeps all.
	Keep int
	// PreRestoreArchive writes the live dataset to BackupDir before a restore
	// clears it.
	PreRestoreArchive bool
}

// Service is the entry point for backup and restore.
type Service struct {
	builder  *BackupBuilder
	restorer *RestoreOrchestrator
	codec    ArchiveCodec
	logger   Logger
	keep     int
}

// NewService wires a builder and an orchestrator around one shared guard.
func NewService(store DataStore, files FileStore, codec ArchiveCodec, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	guard := NewStoreGuard()
	builder := NewBackupBuilder(store, files, codec, guard, logger, clock, opts.BackupDir)
	restorer := NewRestoreOrchestrator(codec, store, files, builder, guard, logger, idgen)
	restorer.SafetyArchive = opts.PreRestoreArchive

	return &Service{
		builder:  builder,
		restorer: restorer,
		codec:    codec,
		logger:   logger,
		keep:     opts.Keep,
	}
}

// BackupResult reports a created archive.
type BackupResult struct {
	File          string
	Size          int64
	EstimatedSize int64
	CarCount      int
	ActivityCount int
	ImageCount    int
	FilesAdded    int
	FilesFailed   int
	Pruned        int
}

// CreateBackup archives the complete live dataset. Live data is never
// modified; retention runs afterwards when configured.
func (s *Service) CreateBackup(ctx context.Context) (*BackupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("backup not started: %w", err)
	}

	ds, err := s.builder.BuildSnapshot(nil)
	if err != nil {
		return nil, fmt.Errorf("reading live data: %w", err)
	}

	estimate, err := s.builder.EstimateSize(ds)
	if err != nil {
		s.logger.Warn("could not estimate backup size", "error", err)
	}

	file, err := s.builder.CreateBackup(ds)
	if err != nil {
		return nil, err
	}

	c := ds.Counts()
	result := &BackupResult{
		File:          file.Path,
		Size:          file.Size,
		EstimatedSize: estimate,
		CarCount:      c.Cars,
		ActivityCount: c.Activities,
		ImageCount:    c.ActivityImages,
		FilesAdded:    file.Stats.FilesAdded,
		FilesFailed:   file.Stats.FilesFailed,
	}

	if s.keep > 0 {
		pruned, err := s.builder.PruneBackups(s.keep)
		if err != nil {
			s.logger.Warn("retention failed", "error", err)
		}
		result.Pruned = pruned
	}
	return result, nil
}

// EstimateBackupSize returns the approximate size of a backup of the
// current live dataset.
func (s *Service) EstimateBackupSize() (int64, error) {
	ds, err := s.builder.BuildSnapshot(nil)
	if err != nil {
		return 0, fmt.Errorf("reading live data: %w", err)
	}
	return s.builder.EstimateSize(ds)
}

// RestoreBackup replaces the live dataset with the archive's content.
func (s *Service) RestoreBackup(ctx context.Context, archivePath string) (*RestoreResult, error) {
	return s.restorer.Restore(ctx, archivePath)
}

// ValidateArchive decodes and validates an archive without touching live
// data. The message describes the content or the reason it is unusable.
func (s *Service) ValidateArchive(archivePath string) (bool, string) {
	archive, err := s.codec.Decode(archivePath)
	if err != nil {
		return false, err.Error()
	}
	defer archive.Cleanup()

	if err := Validate(archive.Dataset).Err(); err != nil {
		return false, err.Error()
	}

	c := archive.Dataset.Counts()
	msg := fmt.Sprintf("backup is valid: %d cars, %d activities, %d images, %d reminders",
		c.Cars, c.Activities, c.ActivityImages, c.Reminders)
	for _, w := range CheckImageFiles(archive.Dataset, archive) {
		msg += " (warning: " + w + ")"
	}
	return true, msg
}

// GetBackupInfo summarizes an archive for display. Keys: file, size,
// version, created, cars, activities, images, reminders, refuelings, vehicles.
func (s *Service) GetBackupInfo(archivePath string) (map[string]string, error) {
	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, NewError(KindInvalidArchive, "reading archive", err)
	}

	ds, err := s.codec.Inspect(archivePath)
	if err != nil {
		return nil, err
	}

	vehicles := make([]string, 0, len(ds.Cars))
	for _, car := range ds.Cars {
		vehicles = append(vehicles, fmt.Sprintf("%s %s (%d)", car.Brand, car.Model, car.Year))
	}

	c := ds.Counts()
	return map[string]string{
		"file":       stat.Name(),
		"size":       humanize.IBytes(uint64(stat.Size())),
		"version":    strconv.Itoa(ds.Version),
		"created":    time.UnixMilli(ds.Timestamp).Format("2006-01-02 15:04:05"),
		"cars":       strconv.Itoa(c.Cars),
		"activities": strconv.Itoa(c.Activities),
		"images":     strconv.Itoa(c.ActivityImages),
		"reminders":  strconv.Itoa(c.Reminders),
		"refuelings": strconv.Itoa(c.RefuelingDetails),
		"vehicles":   strings.Join(vehicles, ", "),
	}, nil
}

// ListBackups returns the archives in the backups directory, newest first.
func (s *Service) ListBackups() ([]*BackupInfo, error) {
	return s.builder.ListBackups()
}

// PruneBackups keeps the newest keep archives and deletes the rest.
func (s *Service) PruneBackups(keep int) (int, error) {
	return s.builder.PruneBackups(keep)
}
