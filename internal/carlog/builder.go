package carlog

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"carlog/internal/model"
)

// sizeOverheadPercent is added to size estimates for container overhead.
const sizeOverheadPercent = 10

// maxArchiveSeq bounds the suffixes tried for archives created within the
// same second.
const maxArchiveSeq = 99

// BackupBuilder reads the live dataset and turns it into archives.
type BackupBuilder struct {
	store  DataStore
	files  FileStore
	codec  ArchiveCodec
	guard  *StoreGuard
	logger Logger
	clock  Clock
	dir    string
}

// NewBackupBuilder creates a builder writing archives into dir.
func NewBackupBuilder(store DataStore, files FileStore, codec ArchiveCodec, guard *StoreGuard, logger Logger, clock Clock, dir string) *BackupBuilder {
	return &BackupBuilder{
		store:  store,
		files:  files,
		codec:  codec,
		guard:  guard,
		logger: logger,
		clock:  clock,
		dir:    dir,
	}
}

// SnapshotFilter restricts a snapshot to the listed cars.
// A nil filter selects every car.
type SnapshotFilter struct {
	CarIDs []int64
}

func (f *SnapshotFilter) includes(carID int64) bool {
	return f == nil || slices.Contains(f.CarIDs, carID)
}

// BackupFile describes an archive written by CreateBackup.
type BackupFile struct {
	Path  string
	Size  int64
	Stats EncodeStats
}

// BackupInfo describes an archive found in the backups directory.
type BackupInfo struct {
	Path      string
	Name      string
	CreatedAt time.Time
	Size      int64

	// seq orders archives created within the same second.
	seq int
}

// BuildSnapshot reads cars, their activities, images and refueling details,
// and the reminders of the selected cars into one dataset. It never writes.
func (b *BackupBuilder) BuildSnapshot(filter *SnapshotFilter) (*model.Dataset, error) {
	b.guard.store.RLock()
	defer b.guard.store.RUnlock()
	return b.buildSnapshot(filter)
}

// buildSnapshot is BuildSnapshot without locking, for callers that already
// hold the store guard.
func (b *BackupBuilder) buildSnapshot(filter *SnapshotFilter) (*model.Dataset, error) {
	ds := model.NewDataset(b.clock.Now().UnixMilli())

	cars, err := b.store.ListCars()
	if err != nil {
		return nil, NewError(KindStorageFailure, "listing cars", err)
	}

	selected := make(map[int64]bool)
	for _, car := range cars {
		if !filter.includes(car.ID) {
			continue
		}
		selected[car.ID] = true
		ds.Cars = append(ds.Cars, *car)

		if err := b.appendActivities(ds, car.ID); err != nil {
			return nil, err
		}
	}

	reminders, err := b.store.ListReminders()
	if err != nil {
		return nil, NewError(KindStorageFailure, "listing reminders", err)
	}
	for _, r := range reminders {
		if selected[r.CarID] {
			ds.Reminders = append(ds.Reminders, *r)
		}
	}

	c := ds.Counts()
	b.logger.Debug("snapshot built", "cars", c.Cars, "activities", c.Activities, "images", c.ActivityImages, "reminders", c.Reminders)
	return ds, nil
}

func (b *BackupBuilder) appendActivities(ds *model.Dataset, carID int64) error {
	activities, err := b.store.ListActivitiesForCar(carID)
	if err != nil {
		return NewError(KindStorageFailure, fmt.Sprintf("listing activities for car %d", carID), err)
	}

	for _, a := range activities {
		ds.Activities = append(ds.Activities, *a)

		images, err := b.store.ListImagesForActivity(a.ID)
		if err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("listing images for activity %d", a.ID), err)
		}
		for _, img := range images {
			ds.ActivityImages = append(ds.ActivityImages, *img)
		}

		if a.Type != model.ActivityRefueling {
			continue
		}
		details, err := b.store.GetRefuelingDetails(a.ID)
		if err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("reading refueling details for activity %d", a.ID), err)
		}
		if details != nil {
			ds.RefuelingDetails = append(ds.RefuelingDetails, *details)
		}
	}
	return nil
}

// CreateBackup encodes ds into a new archive in the backups directory and
// verifies the result. On failure no partial file is left behind.
func (b *BackupBuilder) CreateBackup(ds *model.Dataset) (*BackupFile, error) {
	b.guard.store.RLock()
	defer b.guard.store.RUnlock()
	return b.createBackup(ds)
}

func (b *BackupBuilder) createBackup(ds *model.Dataset) (*BackupFile, error) {
	if len(ds.Cars) == 0 {
		return nil, fmt.Errorf("creating backup: %w", ErrNoCars)
	}

	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backups directory: %w", err)
	}

	now := b.clock.Now()
	var (
		destPath string
		stats    *EncodeStats
		err      error
	)
	for seq := 0; seq <= maxArchiveSeq; seq++ {
		destPath = filepath.Join(b.dir, archiveName(now, seq))
		stats, err = b.codec.Encode(ds, b.files, destPath)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("encoding archive: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("verifying archive: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(destPath)
		return nil, fmt.Errorf("verifying archive: %s is empty", destPath)
	}

	if stats.FilesFailed > 0 {
		b.logger.Warn("some image files were not archived", "failed", stats.FilesFailed, "added", stats.FilesAdded)
	}
	b.logger.Info("backup created", "path", destPath, "size", info.Size())

	return &BackupFile{Path: destPath, Size: info.Size(), Stats: *stats}, nil
}

// EstimateSize approximates the archive size for ds: the serialized document
// plus every distinct referenced file, plus overhead.
func (b *BackupBuilder) EstimateSize(ds *model.Dataset) (int64, error) {
	doc, err := json.Marshal(ds)
	if err != nil {
		return 0, fmt.Errorf("serializing dataset: %w", err)
	}

	total := int64(len(doc))
	for _, p := range append(ds.ImagePaths(), ds.ThumbnailPaths()...) {
		size, err := b.files.Size(p)
		if err != nil {
			continue // missing files are skipped by the codec as well
		}
		total += size
	}

	return total + total*sizeOverheadPercent/100, nil
}

// ListBackups returns the archives in the backups directory, newest first.
// Files whose names do not embed a backup timestamp are ignored.
func (b *BackupBuilder) ListBackups() ([]*BackupInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backups directory: %w", err)
	}

	var backups []*BackupInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		createdAt, seq, ok := parseArchiveName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		backups = append(backups, &BackupInfo{
			Path:      filepath.Join(b.dir, entry.Name()),
			Name:      entry.Name(),
			CreatedAt: createdAt,
			Size:      info.Size(),
			seq:       seq,
		})
	}

	slices.SortFunc(backups, func(x, y *BackupInfo) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(y.seq, x.seq)
	})
	return backups, nil
}

// PruneBackups deletes all but the keep most recent archives and returns
// the number deleted.
func (b *BackupBuilder) PruneBackups(keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}

	backups, err := b.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, old := range backups[keep:] {
		if err := os.Remove(old.Path); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", old.Name, err)
		}
		b.logger.Info("old backup deleted", "path", old.Path)
		deleted++
	}
	return deleted, nil
}

// ArchiveName returns the file name of an archive created at t.
func ArchiveName(t time.Time) string {
	return archiveName(t, 0)
}

// archiveName appends _seq to the timestamp for every archive after the
// first one of a given second.
func archiveName(t time.Time, seq int) string {
	stamp := t.Format(ArchiveTimeForm)
	if seq > 0 {
		stamp += "_" + strconv.Itoa(seq)
	}
	return ArchivePrefix + stamp + "." + ArchiveExt
}

// ParseArchiveName extracts the creation time embedded in an archive name.
// Names carrying a same-second suffix such as backup_2024_01_15_103000_1.zip
// are accepted.
func ParseArchiveName(name string) (time.Time, bool) {
	t, _, ok := parseArchiveName(name)
	return t, ok
}

func parseArchiveName(name string) (time.Time, int, bool) {
	stamp, ok := strings.CutPrefix(name, ArchivePrefix)
	if !ok {
		return time.Time{}, 0, false
	}
	stamp, ok = strings.CutSuffix(stamp, "."+ArchiveExt)
	if !ok || len(stamp) < len(ArchiveTimeForm) {
		return time.Time{}, 0, false
	}

	seq := 0
	if rest := stamp[len(ArchiveTimeForm):]; rest != "" {
		digits, ok := strings.CutPrefix(rest, "_")
		if !ok {
			return time.Time{}, 0, false
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 || strconv.Itoa(n) != digits {
			return time.Time{}, 0, false
		}
		seq = n
	}

	t, err := time.ParseInLocation(ArchiveTimeForm, stamp[:len(ArchiveTimeForm)], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	return t, seq, true
}
