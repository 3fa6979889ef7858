package database

import (
	"testing"

	"carlog/internal/model"
)

// newTestStore creates a new in-memory store with migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func insertCar(t *testing.T, s *SQLiteStore, brand string) int64 {
	t.Helper()
	id, err := s.InsertCar(&model.Car{Brand: brand, Model: "Model", Year: 2015, CreatedAt: 1700000000000, IsActive: true})
	if err != nil {
		t.Fatalf("InsertCar() error = %v", err)
	}
	return id
}

func insertActivity(t *testing.T, s *SQLiteStore, carID int64, typ model.ActivityType) int64 {
	t.Helper()
	id, err := s.InsertActivity(&model.Activity{CarID: carID, Type: typ, Date: 1700000000000, Odometer: 1000, Cost: 50, Currency: "EUR"})
	if err != nil {
		t.Fatalf("InsertActivity() error = %v", err)
	}
	return id
}

func TestSQLiteStore_Cars(t *testing.T) {
	t.Run("GetCar returns nil when not found", func(t *testing.T) {
		s := newTestStore(t)

		car, err := s.GetCar(42)
		if err != nil {
			t.Fatalf("GetCar() error = %v", err)
		}
		if car != nil {
			t.Errorf("GetCar() = %v, want nil", car)
		}
	})

	t.Run("insert and read back every field", func(t *testing.T) {
		s := newTestStore(t)
		expiry := int64(1800000000000)
		want := model.Car{
			Brand:              "Toyota",
			Model:              "Corolla",
			Year:               2015,
			RegistrationNumber: "AB-123",
			VIN:                "JTDBR32E720123456",
			StartingOdometer:   120000,
			InsuranceExpiry:    &expiry,
			CreatedAt:          1700000000000,
			IsActive:           true,
		}

		id, err := s.InsertCar(&want)
		if err != nil {
			t.Fatalf("InsertCar() error = %v", err)
		}
		got, err := s.GetCar(id)
		if err != nil {
			t.Fatalf("GetCar() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetCar() returned nil")
		}

		want.ID = id
		if got.InsuranceExpiry == nil || *got.InsuranceExpiry != expiry {
			t.Errorf("InsuranceExpiry = %v, want %d", got.InsuranceExpiry, expiry)
		}
		if got.RegistrationExpiry != nil {
			t.Errorf("RegistrationExpiry = %v, want nil", *got.RegistrationExpiry)
		}
		got.InsuranceExpiry, want.InsuranceExpiry = nil, nil
		if *got != want {
			t.Errorf("GetCar() = %+v, want %+v", *got, want)
		}
	})

	t.Run("ignores caller ID and never reuses identifiers", func(t *testing.T) {
		s := newTestStore(t)

		first, err := s.InsertCar(&model.Car{ID: 99, Brand: "A", Model: "B", Year: 2000})
		if err != nil {
			t.Fatalf("InsertCar() error = %v", err)
		}
		if first == 99 {
			t.Errorf("InsertCar() used caller ID 99")
		}
		if err := s.DeleteCar(first); err != nil {
			t.Fatalf("DeleteCar() error = %v", err)
		}
		second := insertCar(t, s, "C")
		if second <= first {
			t.Errorf("second ID %d should be greater than deleted ID %d", second, first)
		}
	})

	t.Run("ListCars orders by id", func(t *testing.T) {
		s := newTestStore(t)
		insertCar(t, s, "A")
		insertCar(t, s, "B")

		cars, err := s.ListCars()
		if err != nil {
			t.Fatalf("ListCars() error = %v", err)
		}
		if len(cars) != 2 || cars[0].Brand != "A" || cars[1].Brand != "B" {
			t.Errorf("ListCars() = %+v, want A then B", cars)
		}
	})
}

func TestSQLiteStore_DeleteCarCascades(t *testing.T) {
	s := newTestStore(t)

	carID := insertCar(t, s, "Toyota")
	otherID := insertCar(t, s, "Honda")
	activityID := insertActivity(t, s, carID, model.ActivityRefueling)
	insertActivity(t, s, otherID, model.ActivityCarWash)

	if _, err := s.InsertImage(&model.ActivityImage{ActivityID: activityID, ImagePath: "a.jpg", ThumbnailPath: "t.jpg"}); err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}
	if err := s.InsertRefuelingDetails(&model.RefuelingDetails{ActivityID: activityID, Liters: 40, PricePerLiter: 1.5, FuelType: "Diesel", IsFullTank: true}); err != nil {
		t.Fatalf("InsertRefuelingDetails() error = %v", err)
	}
	if _, err := s.InsertReminder(&model.Reminder{CarID: carID, Message: "Oil", TriggerTime: 1, IsEnabled: true}); err != nil {
		t.Fatalf("InsertReminder() error = %v", err)
	}
	if _, err := s.InsertReminder(&model.Reminder{CarID: otherID, Message: "Tires", TriggerTime: 2}); err != nil {
		t.Fatalf("InsertReminder() error = %v", err)
	}

	if err := s.DeleteCar(carID); err != nil {
		t.Fatalf("DeleteCar() error = %v", err)
	}

	activities, err := s.ListActivitiesForCar(carID)
	if err != nil {
		t.Fatalf("ListActivitiesForCar() error = %v", err)
	}
	if len(activities) != 0 {
		t.Errorf("activities after delete = %d, want 0", len(activities))
	}

	images, err := s.ListImagesForActivity(activityID)
	if err != nil {
		t.Fatalf("ListImagesForActivity() error = %v", err)
	}
	if len(images) != 0 {
		t.Errorf("images after delete = %d, want 0", len(images))
	}

	rd, err := s.GetRefuelingDetails(activityID)
	if err != nil {
		t.Fatalf("GetRefuelingDetails() error = %v", err)
	}
	if rd != nil {
		t.Errorf("refueling details after delete = %+v, want nil", rd)
	}

	reminders, err := s.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders() error = %v", err)
	}
	if len(reminders) != 1 || reminders[0].CarID != otherID {
		t.Errorf("reminders after delete = %+v, want only the other car's", reminders)
	}

	other, err := s.ListActivitiesForCar(otherID)
	if err != nil {
		t.Fatalf("ListActivitiesForCar() error = %v", err)
	}
	if len(other) != 1 {
		t.Errorf("other car activities = %d, want 1", len(other))
	}
}

func TestSQLiteStore_ForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.InsertActivity(&model.Activity{CarID: 12345, Type: model.ActivityCustom}); err == nil {
		t.Error("InsertActivity() with unknown car succeeded, want foreign key error")
	}
	if err := s.InsertRefuelingDetails(&model.RefuelingDetails{ActivityID: 12345}); err == nil {
		t.Error("InsertRefuelingDetails() with unknown activity succeeded, want foreign key error")
	}
}

func TestSQLiteStore_RefuelingDetails(t *testing.T) {
	s := newTestStore(t)
	carID := insertCar(t, s, "Toyota")
	activityID := insertActivity(t, s, carID, model.ActivityRefueling)

	want := model.RefuelingDetails{ActivityID: activityID, Liters: 42.5, PricePerLiter: 1.659, FuelType: "Petrol", IsFullTank: true}
	if err := s.InsertRefuelingDetails(&want); err != nil {
		t.Fatalf("InsertRefuelingDetails() error = %v", err)
	}

	got, err := s.GetRefuelingDetails(activityID)
	if err != nil {
		t.Fatalf("GetRefuelingDetails() error = %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("GetRefuelingDetails() = %+v, want %+v", got, want)
	}

	if err := s.InsertRefuelingDetails(&want); err == nil {
		t.Error("second InsertRefuelingDetails() for the same activity succeeded, want error")
	}
}

func TestSQLiteStore_Operations(t *testing.T) {
	s := newTestStore(t)

	first, err := s.CreateOperation("backup create", "")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	second, err := s.CreateOperation("backup restore", "/tmp/backup.zip")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if err := s.FinishOperation(first.ID, "success"); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := s.ListOperations(10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].ID != second.ID {
		t.Errorf("ops[0].ID = %d, want newest %d", ops[0].ID, second.ID)
	}
	if ops[0].FinishedAt != nil {
		t.Errorf("unfinished operation has FinishedAt %v", ops[0].FinishedAt)
	}
	if ops[1].Status != "success" || ops[1].FinishedAt == nil {
		t.Errorf("finished operation = %+v, want status success with FinishedAt", ops[1])
	}
	if ops[0].Parameters != "/tmp/backup.zip" {
		t.Errorf("Parameters = %q, want /tmp/backup.zip", ops[0].Parameters)
	}

	limited, err := s.ListOperations(1)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListOperations(1) returned %d", len(limited))
	}
}
