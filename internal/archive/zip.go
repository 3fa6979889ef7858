// Package archive implements the backup archive container: a zip file whose
// first entry is the backup.json dataset document, followed by the image
// files under images/ and their thumbnails under images/thumbnails/.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"carlog/internal/carlog"
	"carlog/internal/model"
)

// MaxEntrySize bounds the uncompressed size of a single entry.
const MaxEntrySize = 1 << 30

// ZipCodec reads and writes zip backup archives.
type ZipCodec struct {
	logger carlog.Logger
}

var _ carlog.ArchiveCodec = (*ZipCodec)(nil)

// NewZipCodec creates a codec.
func NewZipCodec(logger carlog.Logger) *ZipCodec {
	return &ZipCodec{logger: logger}
}

// Encode writes ds and its image files to destPath. The archive is built in
// a temp file next to destPath and linked into place, so a failed encode
// never leaves a file at destPath. An existing file at destPath is never
// replaced; Encode fails with an error matching fs.ErrExist instead.
func (c *ZipCodec) Encode(ds *model.Dataset, images carlog.ImageSource, destPath string) (*carlog.EncodeStats, error) {
	if ds == nil || len(ds.Cars) == 0 {
		return nil, fmt.Errorf("encoding archive: %w", carlog.ErrNoCars)
	}

	doc, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("serializing dataset: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	modTime := time.UnixMilli(ds.Timestamp)
	zw := zip.NewWriter(tmpFile)
	if err := writeEntry(zw, carlog.DocumentEntry, doc, modTime); err != nil {
		return nil, err
	}

	stats := &carlog.EncodeStats{}
	if err := c.addFiles(zw, images, ds.ImagePaths(), carlog.ImagesDir, modTime, stats); err != nil {
		return nil, err
	}
	if err := c.addFiles(zw, images, ds.ThumbnailPaths(), carlog.ThumbnailsDir, modTime, stats); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise archive: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	if info.Size() == 0 {
		return nil, errors.New("archive is empty after writing")
	}

	if err := os.Link(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to publish archive: %w", err)
	}
	success = true
	os.Remove(tmpPath)
	return stats, nil
}

// addFiles stores each path under dir by base name. Sources that cannot be
// read are skipped and counted. Only an error from the zip writer is fatal.
func (c *ZipCodec) addFiles(zw *zip.Writer, images carlog.ImageSource, paths []string, dir string, modTime time.Time, stats *carlog.EncodeStats) error {
	seen := make(map[string]string)
	for _, p := range paths {
		name := carlog.BaseName(p)
		if prev, ok := seen[name]; ok {
			c.logger.Warn("image base name already archived, skipping", "path", p, "archived", prev)
			continue
		}

		data, err := images.ReadFile(p)
		if err != nil {
			c.logger.Warn("image file not archived", "path", p, "error", err)
			stats.FilesFailed++
			stats.Failed = append(stats.Failed, p)
			continue
		}

		if err := writeEntry(zw, path.Join(dir, name), data, modTime); err != nil {
			return err
		}
		seen[name] = p
		stats.FilesAdded++
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modTime time.Time) error {
	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	header.Modified = modTime
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}

// Decode checks the container, verifies that every entry stays inside the
// extraction root, parses backup.json and extracts the remaining entries to
// a new temp directory.
func (c *ZipCodec) Decode(archivePath string) (*carlog.DecodedArchive, error) {
	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dir, err := os.MkdirTemp("", "carlog-restore-*")
	if err != nil {
		return nil, carlog.NewError(carlog.KindStorageFailure, "creating extraction directory", err)
	}
	decoded := &carlog.DecodedArchive{Dir: dir}

	success := false
	defer func() {
		if !success {
			decoded.Cleanup()
		}
	}()

	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		target, err := entryTarget(dir, f.Name)
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}

	doc := findEntry(&zr.Reader, carlog.DocumentEntry)
	if doc == nil {
		return nil, carlog.NewError(carlog.KindInvalidArchive, "archive has no "+carlog.DocumentEntry, nil)
	}
	ds, err := decodeDocument(doc)
	if err != nil {
		return nil, err
	}
	decoded.Dataset = ds

	for i, f := range zr.File {
		if f == doc || f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, targets[i]); err != nil {
			return nil, err
		}
	}

	success = true
	c.logger.Debug("archive extracted", "archive", archivePath, "dir", dir, "entries", len(zr.File))
	return decoded, nil
}

// Inspect parses backup.json without extracting any other entry.
func (c *ZipCodec) Inspect(archivePath string) (*model.Dataset, error) {
	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	doc := findEntry(&zr.Reader, carlog.DocumentEntry)
	if doc == nil {
		return nil, carlog.NewError(carlog.KindInvalidArchive, "archive has no "+carlog.DocumentEntry, nil)
	}
	return decodeDocument(doc)
}

// openArchive rejects anything that is not a readable, non-empty zip whose
// first entry can be opened.
func openArchive(archivePath string) (*zip.ReadCloser, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, carlog.NewError(carlog.KindInvalidArchive, "archive not found", err)
		}
		return nil, carlog.NewError(carlog.KindInvalidArchive, "archive not accessible", err)
	}
	if !info.Mode().IsRegular() {
		return nil, carlog.NewError(carlog.KindInvalidArchive, fmt.Sprintf("%s is not a file", archivePath), nil)
	}
	if info.Size() == 0 {
		return nil, carlog.NewError(carlog.KindInvalidArchive, "archive is empty", nil)
	}

	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return nil, carlog.NewError(carlog.KindSecurityViolation, "archive contains entries outside its root", err)
	}
	if err != nil {
		return nil, carlog.NewError(carlog.KindInvalidArchive, "not a valid archive", err)
	}
	if len(zr.File) == 0 {
		zr.Close()
		return nil, carlog.NewError(carlog.KindInvalidArchive, "archive has no entries", nil)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, carlog.NewError(carlog.KindInvalidArchive, "first archive entry cannot be opened", err)
	}
	rc.Close()
	return zr, nil
}

// entryTarget returns where name is extracted under root, or a
// SecurityViolation if it would land outside root.
func entryTarget(root, name string) (string, error) {
	clean := strings.ReplaceAll(name, `\`, "/")
	if clean == "" || strings.HasPrefix(clean, "/") || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", carlog.NewError(carlog.KindSecurityViolation, fmt.Sprintf("archive entry %q has an absolute path", name), nil)
	}

	target := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", carlog.NewError(carlog.KindSecurityViolation, fmt.Sprintf("archive entry %q escapes the extraction directory", name), err)
	}
	return target, nil
}

func findEntry(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func decodeDocument(f *zip.File) (*model.Dataset, error) {
	if f.UncompressedSize64 > MaxEntrySize {
		return nil, carlog.NewError(carlog.KindCorruptData, fmt.Sprintf("%s exceeds %d bytes", f.Name, MaxEntrySize), nil)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, carlog.NewError(carlog.KindInvalidArchive, "opening "+f.Name, err)
	}
	defer rc.Close()

	var ds model.Dataset
	if err := json.NewDecoder(io.LimitReader(rc, MaxEntrySize)).Decode(&ds); err != nil {
		return nil, carlog.NewError(carlog.KindCorruptData, "parsing "+f.Name, err)
	}
	return &ds, nil
}

func extractEntry(f *zip.File, target string) error {
	if f.UncompressedSize64 > MaxEntrySize {
		return carlog.NewError(carlog.KindInvalidArchive, fmt.Sprintf("archive entry %s exceeds %d bytes", f.Name, MaxEntrySize), nil)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return carlog.NewError(carlog.KindStorageFailure, "preparing extraction directory", err)
	}

	rc, err := f.Open()
	if err != nil {
		return carlog.NewError(carlog.KindInvalidArchive, "opening archive entry "+f.Name, err)
	}
	defer rc.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return carlog.NewError(carlog.KindStorageFailure, "creating "+target, err)
	}

	written, err := io.Copy(dst, io.LimitReader(rc, MaxEntrySize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return carlog.NewError(carlog.KindInvalidArchive, "extracting archive entry "+f.Name, err)
	}
	if written > MaxEntrySize {
		return carlog.NewError(carlog.KindInvalidArchive, fmt.Sprintf("archive entry %s exceeds %d bytes", f.Name, MaxEntrySize), nil)
	}
	return nil
}
