package carlog

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"carlog/internal/model"
)

// IDMap maps identifiers from a source dataset to the identifiers the data
// store assigned when the rows were inserted again.
type IDMap map[int64]int64

// Lookup returns the new identifier for old.
func (m IDMap) Lookup(old int64) (int64, bool) {
	id, ok := m[old]
	return id, ok
}

// loadReport collects what a load inserted. It is returned on failure too,
// so the caller can undo file writes.
type loadReport struct {
	Cars       int
	Activities int
	Images     int
	Reminders  int
	Refuelings int
	Warnings   []string
	Written    []string // file store paths created by the load
}

// placedImage is where an image row's files live after a load.
type placedImage struct {
	imagePath     string
	thumbnailPath string
	warnings      []string
	written       []string
}

// imagePlacer decides the file store location of each loaded image row.
type imagePlacer interface {
	place(carID int64, img *model.ActivityImage) (*placedImage, error)
}

// loader inserts a dataset into an empty data store in dependency order,
// rewriting every foreign key through the maps built by earlier steps.
type loader struct {
	store  DataStore
	placer imagePlacer
	logger Logger
}

func (l *loader) load(ctx context.Context, ds *model.Dataset) (*loadReport, error) {
	rep := &loadReport{}

	cars, err := l.loadCars(ctx, ds.Cars, rep)
	if err != nil {
		return rep, err
	}
	activities, activityCars, err := l.loadActivities(ctx, ds.Activities, cars, rep)
	if err != nil {
		return rep, err
	}
	if err := l.loadImages(ctx, ds.ActivityImages, activities, activityCars, rep); err != nil {
		return rep, err
	}
	if err := l.loadReminders(ctx, ds.Reminders, cars, rep); err != nil {
		return rep, err
	}
	if err := l.loadRefuelings(ctx, ds.RefuelingDetails, activities, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewError(KindStorageFailure, "restore deadline exceeded", err)
	}
	return nil
}

func (l *loader) loadCars(ctx context.Context, cars []model.Car, rep *loadReport) (IDMap, error) {
	ids := make(IDMap, len(cars))
	for _, car := range cars {
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		newID, err := l.store.InsertCar(&car)
		if err != nil {
			return nil, NewError(KindStorageFailure, fmt.Sprintf("inserting car %d", car.ID), err)
		}
		ids[car.ID] = newID
		rep.Cars++
	}
	return ids, nil
}

// loadActivities returns the activity map and, keyed by new activity ID,
// the new ID of the owning car.
func (l *loader) loadActivities(ctx context.Context, activities []model.Activity, cars IDMap, rep *loadReport) (IDMap, IDMap, error) {
	ids := make(IDMap, len(activities))
	owners := make(IDMap, len(activities))
	for _, a := range activities {
		if err := checkDeadline(ctx); err != nil {
			return nil, nil, err
		}
		carID, ok := cars.Lookup(a.CarID)
		if !ok {
			l.logger.Warn("skipping activity with unmapped car", "activity", a.ID, "car", a.CarID)
			continue
		}
		a.CarID = carID
		newID, err := l.store.InsertActivity(&a)
		if err != nil {
			return nil, nil, NewError(KindStorageFailure, fmt.Sprintf("inserting activity %d", a.ID), err)
		}
		ids[a.ID] = newID
		owners[newID] = carID
		rep.Activities++
	}
	return ids, owners, nil
}

func (l *loader) loadImages(ctx context.Context, images []model.ActivityImage, activities, owners IDMap, rep *loadReport) error {
	for _, img := range images {
		if err := checkDeadline(ctx); err != nil {
			return err
		}
		activityID, ok := activities.Lookup(img.ActivityID)
		if !ok {
			l.logger.Warn("skipping image with unmapped activity", "image", img.ID, "activity", img.ActivityID)
			continue
		}

		placed, err := l.placer.place(owners[activityID], &img)
		if placed != nil {
			rep.Written = append(rep.Written, placed.written...)
		}
		if err != nil {
			return err
		}
		rep.Warnings = append(rep.Warnings, placed.warnings...)

		img.ActivityID = activityID
		img.ImagePath = placed.imagePath
		img.ThumbnailPath = placed.thumbnailPath
		if _, err := l.store.InsertImage(&img); err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("inserting image %d", img.ID), err)
		}
		rep.Images++
	}
	return nil
}

func (l *loader) loadReminders(ctx context.Context, reminders []model.Reminder, cars IDMap, rep *loadReport) error {
	for _, r := range reminders {
		if err := checkDeadline(ctx); err != nil {
			return err
		}
		carID, ok := cars.Lookup(r.CarID)
		if !ok {
			l.logger.Warn("skipping reminder with unmapped car", "reminder", r.ID, "car", r.CarID)
			continue
		}
		r.CarID = carID
		if _, err := l.store.InsertReminder(&r); err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("inserting reminder %d", r.ID), err)
		}
		rep.Reminders++
	}
	return nil
}

func (l *loader) loadRefuelings(ctx context.Context, details []model.RefuelingDetails, activities IDMap, rep *loadReport) error {
	for _, rd := range details {
		if err := checkDeadline(ctx); err != nil {
			return err
		}
		activityID, ok := activities.Lookup(rd.ActivityID)
		if !ok {
			l.logger.Warn("skipping refueling details with unmapped activity", "activity", rd.ActivityID)
			continue
		}
		rd.ActivityID = activityID
		if err := l.store.InsertRefuelingDetails(&rd); err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("inserting refueling details for activity %d", activityID), err)
		}
		rep.Refuelings++
	}
	return nil
}

// archivePlacer copies image files out of an extracted archive into the
// file store under fresh names in the new car's directory.
type archivePlacer struct {
	archive *DecodedArchive
	files   FileStore
	idgen   IDGenerator

	// source paths per archived base name
	imageNames     map[string][]string
	thumbnailNames map[string][]string
}

func newArchivePlacer(archive *DecodedArchive, files FileStore, idgen IDGenerator) *archivePlacer {
	return &archivePlacer{
		archive:         archive,
		files:           files,
		idgen:           idgen,
		imageNames:     groupByBaseName(archive.Dataset.ImagePaths()),
		thumbnailNames: groupByBaseName(archive.Dataset.ThumbnailPaths()),
	}
}

func groupByBaseName(paths []string) map[string][]string {
	groups := make(map[string][]string, len(paths))
	for _, p := range paths {
		name := BaseName(p)
		groups[name] = append(groups[name], p)
	}
	return groups
}

func (p *archivePlacer) place(carID int64, img *model.ActivityImage) (*placedImage, error) {
	placed := &placedImage{}

	if img.ImagePath != "" {
		dest := p.files.ImagePath(carID, p.idgen.New()+path.Ext(BaseName(img.ImagePath)))
		if err := p.copyFile(p.archive.ImageFile(img.ImagePath), dest, placed); err != nil {
			return placed, err
		}
		p.warnShared(p.imageNames, img.ImagePath, placed)
		placed.imagePath = dest
	}

	if img.ThumbnailPath != "" {
		dest := p.files.ThumbnailPath(carID, p.idgen.New()+path.Ext(BaseName(img.ThumbnailPath)))
		if err := p.copyFile(p.archive.ThumbnailFile(img.ThumbnailPath), dest, placed); err != nil {
			return placed, err
		}
		p.warnShared(p.thumbnailNames, img.ThumbnailPath, placed)
		placed.thumbnailPath = dest
	}

	return placed, nil
}

// copyFile copies src into the file store. A missing source is recorded as
// a warning and the row keeps its new path.
func (p *archivePlacer) copyFile(src, dest string, placed *placedImage) error {
	data, err := os.ReadFile(src)
	if err != nil {
		placed.warnings = append(placed.warnings, fmt.Sprintf("image file %s is missing from the archive", path.Base(src)))
		return nil
	}
	if err := p.files.WriteFile(dest, data); err != nil {
		return NewError(KindStorageFailure, fmt.Sprintf("writing image file %s", dest), err)
	}
	placed.written = append(placed.written, dest)
	return nil
}

// warnShared records a warning when src shares its archived base name with
// other source paths. The archive holds one file per base name, so at most
// one of them gets its own content back.
func (p *archivePlacer) warnShared(groups map[string][]string, src string, placed *placedImage) {
	others := slices.DeleteFunc(slices.Clone(groups[BaseName(src)]), func(o string) bool { return o == src })
	if len(others) == 0 {
		return
	}
	placed.warnings = append(placed.warnings, fmt.Sprintf("image file %s shares its name with %s; its restored content may belong to another image",
		src, strings.Join(others, ", ")))
}

// keepPlacer leaves image paths untouched. Used when replaying a snapshot
// whose files never left the file store.
type keepPlacer struct{}

func (keepPlacer) place(_ int64, img *model.ActivityImage) (*placedImage, error) {
	return &placedImage{imagePath: img.ImagePath, thumbnailPath: img.ThumbnailPath}, nil
}
