package carlog

// FileStore stores the binary image files referenced by activity images.
type FileStore interface {
	// ReadFile returns the content of the file at path.
	ReadFile(path string) ([]byte, error)

	// WriteFile stores data at path, replacing any existing file.
	WriteFile(path string, data []byte) error

	// Exists reports whether a file is present at path.
	Exists(path string) bool

	// Delete removes the file at path. Deleting a missing file is not an error.
	Delete(path string) error

	// Size returns the size of the file at path in bytes.
	Size(path string) (int64, error)

	// ImagePath returns where a full-size image named name belongs for a car.
	ImagePath(carID int64, name string) string

	// ThumbnailPath returns where a thumbnail named name belongs for a car.
	ThumbnailPath(carID int64, name string) string
}
