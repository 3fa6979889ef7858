package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"carlog/internal/archive"
	"carlog/internal/carlog"
	"carlog/internal/files"
	"carlog/internal/model"
)

// Scenario identifiers. They are deliberately far from anything a fresh
// store assigns, so tests notice when an ID is not remapped.
const (
	ScenarioCarA         = 10
	ScenarioCarB         = 20
	ScenarioRefueling    = 100
	ScenarioOilChange    = 101
	ScenarioMechanic     = 102
	ScenarioCarAReminder = 500
)

// ScenarioDataset returns two cars: car A with three activities (a
// refueling with two photos and refueling details, an oil change and a
// mechanic visit) and a reminder, and car B with nothing attached.
func ScenarioDataset() *model.Dataset {
	ds := model.NewDataset(1705314600000)
	expiry := int64(1735689600000)

	ds.Cars = []model.Car{
		{ID: ScenarioCarA, Brand: "Toyota", Model: "Corolla", Year: 2015, RegistrationNumber: "ZG-1234-AB",
			VIN: "JTDBR32E720123456", StartingOdometer: 120000, InsuranceExpiry: &expiry, CreatedAt: 1700000000000, IsActive: true},
		{ID: ScenarioCarB, Brand: "Honda", Model: "Civic", Year: 2019, CreatedAt: 1700000100000, IsActive: false},
	}
	ds.Activities = []model.Activity{
		{ID: ScenarioRefueling, CarID: ScenarioCarA, Type: model.ActivityRefueling, Date: 1701000000000, Odometer: 121000, Cost: 66.4, Currency: "EUR", CreatedAt: 1701000000000},
		{ID: ScenarioOilChange, CarID: ScenarioCarA, Type: model.ActivityOilChange, Date: 1702000000000, Odometer: 122000, Cost: 89.9, Currency: "EUR", Notes: "5W-30", CreatedAt: 1702000000000},
		{ID: ScenarioMechanic, CarID: ScenarioCarA, Type: model.ActivityMechanicVisit, Date: 1703000000000, Odometer: 123500, Cost: 240, Currency: "EUR", Notes: "brakes", CreatedAt: 1703000000000},
	}
	ds.ActivityImages = []model.ActivityImage{
		{ID: 1000, ActivityID: ScenarioRefueling, ImagePath: "/device/photos/receipt.jpg", ThumbnailPath: "/device/photos/thumbs/receipt.jpg", CreatedAt: 1701000000000},
		{ID: 1001, ActivityID: ScenarioRefueling, ImagePath: "/device/photos/pump.jpg", ThumbnailPath: "/device/photos/thumbs/pump.jpg", CreatedAt: 1701000000001},
	}
	ds.Reminders = []model.Reminder{
		{ID: ScenarioCarAReminder, CarID: ScenarioCarA, Message: "Renew insurance", TriggerTime: 1735000000000, IsEnabled: true, CreatedAt: 1701000000000},
	}
	ds.RefuelingDetails = []model.RefuelingDetails{
		{ActivityID: ScenarioRefueling, Liters: 40, PricePerLiter: 1.66, FuelType: "Diesel", IsFullTank: true},
	}
	return ds
}

// ImageBytes is the content fixtures store for the file at path.
func ImageBytes(path string) []byte {
	return []byte(fmt.Sprintf("image data for %s", path))
}

// FilesFor returns a memory file store holding every file ds references.
func FilesFor(ds *model.Dataset) *files.MemoryStore {
	m := files.NewMemoryStore()
	for _, p := range append(ds.ImagePaths(), ds.ThumbnailPaths()...) {
		m.WriteFile(p, ImageBytes(p))
	}
	return m
}

// WriteArchive encodes ds with its files into a new archive under a temp dir.
func WriteArchive(t *testing.T, ds *model.Dataset, images carlog.ImageSource) string {
	t.Helper()

	dest := filepath.Join(t.TempDir(), "backup_2024_01_15_103000.zip")
	if _, err := archive.NewZipCodec(carlog.NewNopLogger()).Encode(ds, images, dest); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	return dest
}

// LiveCar is a one-car dataset with a single activity, used as the live
// data a restore replaces.
func LiveCar(brand string, year int) *model.Dataset {
	ds := model.NewDataset(1705314600000)
	ds.Cars = []model.Car{{ID: 1, Brand: brand, Model: "Live", Year: year, CreatedAt: 1690000000000, IsActive: true}}
	ds.Activities = []model.Activity{{ID: 1, CarID: 1, Type: model.ActivityCarWash, Date: 1690000000000, Cost: 10, Currency: "EUR"}}
	return ds
}

// Seed inserts ds into store, remapping identifiers, and returns the new
// car identifiers in dataset order.
func Seed(t *testing.T, store carlog.DataStore, ds *model.Dataset) []int64 {
	t.Helper()

	cars := make(map[int64]int64)
	var carIDs []int64
	for _, c := range ds.Cars {
		id, err := store.InsertCar(&c)
		if err != nil {
			t.Fatalf("seeding car: %v", err)
		}
		cars[c.ID] = id
		carIDs = append(carIDs, id)
	}

	activities := make(map[int64]int64)
	for _, a := range ds.Activities {
		a.CarID = cars[a.CarID]
		id, err := store.InsertActivity(&a)
		if err != nil {
			t.Fatalf("seeding activity: %v", err)
		}
		activities[a.ID] = id
	}
	for _, img := range ds.ActivityImages {
		img.ActivityID = activities[img.ActivityID]
		if _, err := store.InsertImage(&img); err != nil {
			t.Fatalf("seeding image: %v", err)
		}
	}
	for _, r := range ds.Reminders {
		r.CarID = cars[r.CarID]
		if _, err := store.InsertReminder(&r); err != nil {
			t.Fatalf("seeding reminder: %v", err)
		}
	}
	for _, rd := range ds.RefuelingDetails {
		rd.ActivityID = activities[rd.ActivityID]
		if err := store.InsertRefuelingDetails(&rd); err != nil {
			t.Fatalf("seeding refueling details: %v", err)
		}
	}
	return carIDs
}

// StripCarIDs returns the cars of store with identifiers cleared, for
// comparing content across restores.
func StripCarIDs(t *testing.T, store carlog.DataStore) []model.Car {
	t.Helper()

	cars, err := store.ListCars()
	if err != nil {
		t.Fatalf("listing cars: %v", err)
	}
	out := make([]model.Car, len(cars))
	for i, c := range cars {
		out[i] = *c
		out[i].ID = 0
	}
	return out
}
