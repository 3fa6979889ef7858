package carlog

import "carlog/internal/model"

// DataStore provides the entity operations the backup engine needs.
// Insert methods ignore any ID on the argument and return the
// store-assigned identifier. Deleting a car cascades to its activities,
// images, refueling details and reminders.
type DataStore interface {
	// Car operations

	ListCars() ([]*model.Car, error)

	// GetCar returns nil if no car has the given ID.
	GetCar(id int64) (*model.Car, error)

	InsertCar(car *model.Car) (int64, error)
	DeleteCar(id int64) error

	// Activity operations

	ListActivitiesForCar(carID int64) ([]*model.Activity, error)
	InsertActivity(activity *model.Activity) (int64, error)

	// Image operations

	ListImagesForActivity(activityID int64) ([]*model.ActivityImage, error)
	InsertImage(image *model.ActivityImage) (int64, error)

	// Reminder operations

	// ListReminders returns the reminders of every car.
	ListReminders() ([]*model.Reminder, error)
	InsertReminder(reminder *model.Reminder) (int64, error)

	// Refueling operations

	// GetRefuelingDetails returns nil if the activity has no refueling details.
	GetRefuelingDetails(activityID int64) (*model.RefuelingDetails, error)
	InsertRefuelingDetails(details *model.RefuelingDetails) error
}
