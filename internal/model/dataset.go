package model

// DatasetVersion is the only document version this build reads and writes.
const DatasetVersion = 1

// Dataset is a complete snapshot of the five entity collections. It is the
// document stored as backup.json inside an archive, and also the in-memory
// safety snapshot taken before a restore.
type Dataset struct {
	Version          int                `json:"version"`
	Timestamp        int64              `json:"timestamp"` // epoch milliseconds
	Cars             []Car              `json:"cars"`
	Activities       []Activity         `json:"activities"`
	ActivityImages   []ActivityImage    `json:"activityImages"`
	Reminders        []Reminder         `json:"reminders"`
	RefuelingDetails []RefuelingDetails `json:"refuelingDetails"`
}

// NewDataset returns an empty dataset stamped with the current version.
func NewDataset(timestamp int64) *Dataset {
	return &Dataset{
		Version:          DatasetVersion,
		Timestamp:        timestamp,
		Cars:             []Car{},
		Activities:       []Activity{},
		ActivityImages:   []ActivityImage{},
		Reminders:        []Reminder{},
		RefuelingDetails: []RefuelingDetails{},
	}
}

// Counts summarizes the number of rows per collection.
type Counts struct {
	Cars             int
	Activities       int
	ActivityImages   int
	Reminders        int
	RefuelingDetails int
}

func (d *Dataset) Counts() Counts {
	return Counts{
		Cars:             len(d.Cars),
		Activities:       len(d.Activities),
		ActivityImages:   len(d.ActivityImages),
		Reminders:        len(d.Reminders),
		RefuelingDetails: len(d.RefuelingDetails),
	}
}

// ImagePaths returns the distinct non-empty full-size image paths, in order
// of first reference.
func (d *Dataset) ImagePaths() []string {
	return distinct(d.ActivityImages, func(img ActivityImage) string { return img.ImagePath })
}

// ThumbnailPaths returns the distinct non-empty thumbnail paths, in order of
// first reference.
func (d *Dataset) ThumbnailPaths() []string {
	return distinct(d.ActivityImages, func(img ActivityImage) string { return img.ThumbnailPath })
}

func distinct(images []ActivityImage, pick func(ActivityImage) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, img := range images {
		p := pick(img)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
