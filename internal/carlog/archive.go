package carlog

import (
	"os"
	"path"
	"path/filepath"

	"carlog/internal/model"
)

// Archive layout shared by the codec and the restore orchestrator.
const (
	DocumentEntry   = "backup.json"
	ImagesDir       = "images"
	ThumbnailsDir   = "images/thumbnails"
	ArchiveExt      = "zip"
	ArchivePrefix   = "backup_"
	ArchiveTimeForm = "2006_01_02_150405"
)

// ImageSource reads the image files referenced by a dataset.
type ImageSource interface {
	ReadFile(path string) ([]byte, error)
}

// ArchiveCodec converts between a dataset plus its image files and a single
// archive file on disk.
type ArchiveCodec interface {
	// Encode writes ds and every image it references to destPath.
	// Missing or unreadable image files are skipped and counted. It fails
	// with an error matching fs.ErrExist if destPath already exists.
	Encode(ds *model.Dataset, images ImageSource, destPath string) (*EncodeStats, error)

	// Decode validates the container, extracts it to a temp directory and
	// parses the dataset document. The caller must call Cleanup.
	Decode(archivePath string) (*DecodedArchive, error)

	// Inspect parses the dataset document without extracting anything.
	Inspect(archivePath string) (*model.Dataset, error)
}

// EncodeStats reports how many image files made it into an archive.
type EncodeStats struct {
	FilesAdded  int
	FilesFailed int
	Failed      []string // source paths that could not be added
}

// DecodedArchive is a parsed dataset plus the directory its files were
// extracted to.
type DecodedArchive struct {
	Dataset *model.Dataset
	Dir     string
}

// ImageFile returns the extracted location of the full-size image whose
// original path was p (matched by base name).
func (a *DecodedArchive) ImageFile(p string) string {
	return filepath.Join(a.Dir, filepath.FromSlash(ImagesDir), BaseName(p))
}

// ThumbnailFile returns the extracted location of the thumbnail whose
// original path was p.
func (a *DecodedArchive) ThumbnailFile(p string) string {
	return filepath.Join(a.Dir, filepath.FromSlash(ThumbnailsDir), BaseName(p))
}

// Cleanup removes the extraction directory.
func (a *DecodedArchive) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// BaseName returns the last element of an image path regardless of the
// separator the recording device used.
func BaseName(p string) string {
	return path.Base(filepath.ToSlash(p))
}
