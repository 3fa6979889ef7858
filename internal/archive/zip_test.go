package archive_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"carlog/internal/archive"
	"carlog/internal/carlog"
	"carlog/internal/model"
	"carlog/internal/testutil"
)

func newCodec() *archive.ZipCodec {
	return archive.NewZipCodec(carlog.NewNopLogger())
}

// writeZip builds a raw zip with the given entries, in order.
func writeZip(t *testing.T, entries []struct{ name, body string }) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("creating entry %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("writing entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	p := filepath.Join(t.TempDir(), "crafted.zip")
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing zip: %v", err)
	}
	return p
}

func validDocument(t *testing.T) string {
	t.Helper()
	ds := testutil.ScenarioDataset()
	ds.ActivityImages = nil
	data, err := os.ReadFile(testutil.WriteArchive(t, ds, testutil.FilesFor(ds)))
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	buf.ReadFrom(rc)
	return buf.String()
}

func TestZipCodec_RoundTrip(t *testing.T) {
	ds := testutil.ScenarioDataset()
	images := testutil.FilesFor(ds)
	codec := newCodec()

	dest := filepath.Join(t.TempDir(), "backup.zip")
	stats, err := codec.Encode(ds, images, dest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.FilesAdded != 4 || stats.FilesFailed != 0 {
		t.Errorf("stats = %+v, want 4 added, 0 failed", stats)
	}

	decoded, err := codec.Decode(dest)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer decoded.Cleanup()

	if !reflect.DeepEqual(decoded.Dataset, ds) {
		t.Errorf("decoded dataset differs\n got: %+v\nwant: %+v", decoded.Dataset, ds)
	}

	for _, img := range ds.ActivityImages {
		got, err := os.ReadFile(decoded.ImageFile(img.ImagePath))
		if err != nil {
			t.Fatalf("reading extracted image: %v", err)
		}
		if !bytes.Equal(got, testutil.ImageBytes(img.ImagePath)) {
			t.Errorf("image %s bytes differ", img.ImagePath)
		}
		got, err = os.ReadFile(decoded.ThumbnailFile(img.ThumbnailPath))
		if err != nil {
			t.Fatalf("reading extracted thumbnail: %v", err)
		}
		if !bytes.Equal(got, testutil.ImageBytes(img.ThumbnailPath)) {
			t.Errorf("thumbnail %s bytes differ", img.ThumbnailPath)
		}
	}

	dir := decoded.Dir
	if err := decoded.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("extraction directory still exists after Cleanup")
	}
}

func TestZipCodec_Encode_Layout(t *testing.T) {
	ds := testutil.ScenarioDataset()
	dest := testutil.WriteArchive(t, ds, testutil.FilesFor(ds))

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{
		"backup.json",
		"images/receipt.jpg",
		"images/pump.jpg",
		"images/thumbnails/receipt.jpg",
		"images/thumbnails/pump.jpg",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestZipCodec_Encode_SkipsMissingFiles(t *testing.T) {
	ds := testutil.ScenarioDataset()
	images := testutil.FilesFor(ds)
	images.Delete("/device/photos/pump.jpg")

	stats, err := newCodec().Encode(ds, images, filepath.Join(t.TempDir(), "b.zip"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.FilesAdded != 3 || stats.FilesFailed != 1 {
		t.Errorf("stats = %+v, want 3 added, 1 failed", stats)
	}
	if len(stats.Failed) != 1 || stats.Failed[0] != "/device/photos/pump.jpg" {
		t.Errorf("Failed = %v, want [/device/photos/pump.jpg]", stats.Failed)
	}
}

func TestZipCodec_Encode_RejectsEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "empty.zip")

	_, err := newCodec().Encode(model.NewDataset(0), testutil.FilesFor(model.NewDataset(0)), dest)
	if !errors.Is(err, carlog.ErrNoCars) {
		t.Fatalf("Encode() error = %v, want ErrNoCars", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("files left behind: %v", entries)
	}
}

func TestZipCodec_Encode_NeverReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "backup_2024_01_15_103000.zip")
	if err := os.WriteFile(dest, []byte("older backup"), 0644); err != nil {
		t.Fatal(err)
	}

	ds := testutil.ScenarioDataset()
	_, err := newCodec().Encode(ds, testutil.FilesFor(ds), dest)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("Encode() error = %v, want fs.ErrExist", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "older backup" {
		t.Errorf("existing file = %q, %v, want it untouched", data, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("files left behind: %v", entries)
	}
}

func TestZipCodec_Decode_PathTraversal(t *testing.T) {
	names := []string{"../../evil", "images/../../evil", "/etc/evil", `..\..\evil`}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			outside := filepath.Join(os.TempDir(), "evil")
			os.Remove(outside)

			p := writeZip(t, []struct{ name, body string }{
				{"backup.json", validDocument(t)},
				{name, "pwned"},
			})

			decoded, err := newCodec().Decode(p)
			if !errors.Is(err, carlog.ErrSecurityViolation) {
				t.Fatalf("Decode() error = %v, want SecurityViolation", err)
			}
			if decoded != nil {
				t.Errorf("Decode() returned an archive on violation")
			}
			if _, err := os.Stat(outside); err == nil {
				t.Errorf("file written outside extraction root: %s", outside)
			}
		})
	}
}

func TestZipCodec_Decode_InvalidContainers(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.zip")
	os.WriteFile(empty, nil, 0644)

	garbage := filepath.Join(dir, "garbage.zip")
	os.WriteFile(garbage, []byte("this is not a zip file at all"), 0644)

	noDoc := writeZip(t, []struct{ name, body string }{{"images/a.jpg", "x"}})

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.zip")},
		{"zero-length file", empty},
		{"not a zip", garbage},
		{"directory", dir},
		{"no backup.json", noDoc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCodec().Decode(tt.path)
			if !errors.Is(err, carlog.ErrInvalidArchive) {
				t.Errorf("Decode() error = %v, want InvalidArchive", err)
			}
		})
	}
}

func TestZipCodec_Decode_CorruptDocument(t *testing.T) {
	p := writeZip(t, []struct{ name, body string }{{"backup.json", `{"version": 1, "cars": [`}})

	_, err := newCodec().Decode(p)
	if !errors.Is(err, carlog.ErrCorruptData) {
		t.Fatalf("Decode() error = %v, want CorruptData", err)
	}
	if carlog.KindOf(err) != carlog.KindCorruptData {
		t.Errorf("KindOf() = %v, want CorruptData", carlog.KindOf(err))
	}
}

func TestZipCodec_Inspect(t *testing.T) {
	ds := testutil.ScenarioDataset()
	p := testutil.WriteArchive(t, ds, testutil.FilesFor(ds))

	got, err := newCodec().Inspect(p)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if got.Counts() != ds.Counts() {
		t.Errorf("Counts() = %+v, want %+v", got.Counts(), ds.Counts())
	}

	if _, err := newCodec().Inspect(filepath.Join(t.TempDir(), "missing.zip")); !errors.Is(err, carlog.ErrInvalidArchive) {
		t.Errorf("Inspect() of missing file error = %v, want InvalidArchive", err)
	}
}
