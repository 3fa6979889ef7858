package files

import (
	"bytes"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	p := m.ImagePath(1, "a.jpg")
	if p != "/images/car_1/a.jpg" {
		t.Errorf("ImagePath() = %q, want /images/car_1/a.jpg", p)
	}
	if got := m.ThumbnailPath(1, "a.jpg"); got != "/images/car_1/thumbnails/a.jpg" {
		t.Errorf("ThumbnailPath() = %q, want /images/car_1/thumbnails/a.jpg", got)
	}

	data := []byte("image")
	if err := m.WriteFile(p, data); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data[0] = 'X'

	got, err := m.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, []byte("image")) {
		t.Errorf("ReadFile() = %q, want stored copy %q", got, "image")
	}
	if size, _ := m.Size(p); size != 5 {
		t.Errorf("Size() = %d, want 5", size)
	}
	if paths := m.Paths(); len(paths) != 1 || paths[0] != p {
		t.Errorf("Paths() = %v, want [%s]", paths, p)
	}

	if err := m.Delete(p); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if m.Exists(p) {
		t.Error("Exists() = true after Delete")
	}
	if err := m.Delete(p); err != nil {
		t.Errorf("Delete() of missing file error = %v", err)
	}
	if _, err := m.ReadFile(p); err == nil {
		t.Error("ReadFile() of missing file succeeded")
	}
}
