package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carlog/internal/carlog"
	"carlog/internal/database/migrations"
	"carlog/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements carlog.DataStore on SQLite. Identifiers are
// assigned by AUTOINCREMENT and never reused, and foreign keys cascade
// from cars to activities, images, refueling details and reminders.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ carlog.DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path (or ":memory:") and applies
// pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with foreign keys
// enforced. An in-memory database is limited to one connection, since every
// connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Car operations

const carColumns = `id, brand, model, year, registration_number, vin, starting_odometer,
	insurance_expiry, registration_expiry, created_at, is_active`

func scanCar(row interface{ Scan(...any) error }) (*model.Car, error) {
	var c model.Car
	var insurance, registration sql.NullInt64
	err := row.Scan(&c.ID, &c.Brand, &c.Model, &c.Year, &c.RegistrationNumber, &c.VIN,
		&c.StartingOdometer, &insurance, &registration, &c.CreatedAt, &c.IsActive)
	if err != nil {
		return nil, err
	}
	c.InsuranceExpiry = nullableInt(insurance)
	c.RegistrationExpiry = nullableInt(registration)
	return &c, nil
}

func (s *SQLiteStore) ListCars() ([]*model.Car, error) {
	rows, err := s.db.Query(`SELECT ` + carColumns + ` FROM cars ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing cars: %w", err)
	}
	defer rows.Close()

	var cars []*model.Car
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning car: %w", err)
		}
		cars = append(cars, c)
	}
	return cars, rows.Err()
}

func (s *SQLiteStore) GetCar(id int64) (*model.Car, error) {
	c, err := scanCar(s.db.QueryRow(`SELECT `+carColumns+` FROM cars WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting car %d: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) InsertCar(car *model.Car) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO cars (brand, model, year, registration_number, vin,
		starting_odometer, insurance_expiry, registration_expiry, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		car.Brand, car.Model, car.Year, car.RegistrationNumber, car.VIN, car.StartingOdometer,
		car.InsuranceExpiry, car.RegistrationExpiry, car.CreatedAt, car.IsActive)
	if err != nil {
		return 0, fmt.Errorf("inserting car: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) DeleteCar(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM cars WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting car %d: %w", id, err)
	}
	return nil
}

// Activity operations

func (s *SQLiteStore) ListActivitiesForCar(carID int64) ([]*model.Activity, error) {
	rows, err := s.db.Query(`SELECT id, car_id, type, date, odometer, cost, currency, notes, created_at
		FROM activities WHERE car_id = ? ORDER BY date, id`, carID)
	if err != nil {
		return nil, fmt.Errorf("listing activities for car %d: %w", carID, err)
	}
	defer rows.Close()

	var activities []*model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.CarID, &a.Type, &a.Date, &a.Odometer, &a.Cost,
			&a.Currency, &a.Notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

func (s *SQLiteStore) InsertActivity(a *model.Activity) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO activities (car_id, type, date, odometer, cost, currency, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.CarID, a.Type, a.Date, a.Odometer, a.Cost, a.Currency, a.Notes, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting activity: %w", err)
	}
	return res.LastInsertId()
}

// Image operations

func (s *SQLiteStore) ListImagesForActivity(activityID int64) ([]*model.ActivityImage, error) {
	rows, err := s.db.Query(`SELECT id, activity_id, image_path, thumbnail_path, created_at
		FROM activity_images WHERE activity_id = ? ORDER BY id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("listing images for activity %d: %w", activityID, err)
	}
	defer rows.Close()

	var images []*model.ActivityImage
	for rows.Next() {
		var img model.ActivityImage
		if err := rows.Scan(&img.ID, &img.ActivityID, &img.ImagePath, &img.ThumbnailPath, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

func (s *SQLiteStore) InsertImage(img *model.ActivityImage) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO activity_images (activity_id, image_path, thumbnail_path, created_at)
		VALUES (?, ?, ?, ?)`,
		img.ActivityID, img.ImagePath, img.ThumbnailPath, img.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting image: %w", err)
	}
	return res.LastInsertId()
}

// Reminder operations

func (s *SQLiteStore) ListReminders() ([]*model.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, car_id, message, trigger_time, is_enabled, is_completed, created_at
		FROM reminders ORDER BY trigger_time, id`)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*model.Reminder
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(&r.ID, &r.CarID, &r.Message, &r.TriggerTime, &r.IsEnabled,
			&r.IsCompleted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		reminders = append(reminders, &r)
	}
	return reminders, rows.Err()
}

func (s *SQLiteStore) InsertReminder(r *model.Reminder) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO reminders (car_id, message, trigger_time, is_enabled, is_completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.CarID, r.Message, r.TriggerTime, r.IsEnabled, r.IsCompleted, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting reminder: %w", err)
	}
	return res.LastInsertId()
}

// Refueling operations

func (s *SQLiteStore) GetRefuelingDetails(activityID int64) (*model.RefuelingDetails, error) {
	var rd model.RefuelingDetails
	err := s.db.QueryRow(`SELECT activity_id, liters, price_per_liter, fuel_type, is_full_tank
		FROM refueling_details WHERE activity_id = ?`, activityID).
		Scan(&rd.ActivityID, &rd.Liters, &rd.PricePerLiter, &rd.FuelType, &rd.IsFullTank)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting refueling details for activity %d: %w", activityID, err)
	}
	return &rd, nil
}

func (s *SQLiteStore) InsertRefuelingDetails(rd *model.RefuelingDetails) error {
	_, err := s.db.Exec(`INSERT INTO refueling_details (activity_id, liters, price_per_liter, fuel_type, is_full_tank)
		VALUES (?, ?, ?, ?, ?)`,
		rd.ActivityID, rd.Liters, rd.PricePerLiter, rd.FuelType, rd.IsFullTank)
	if err != nil {
		return fmt.Errorf("inserting refueling details: %w", err)
	}
	return nil
}

// Operation tracking

func (s *SQLiteStore) CreateOperation(operation, parameters string) (*model.Operation, error) {
	started := time.Now()
	res, err := s.db.Exec(`INSERT INTO operations (started_at, operation, parameters) VALUES (?, ?, ?)`,
		started.UnixMilli(), operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return &model.Operation{ID: id, StartedAt: started, Operation: operation, Parameters: parameters}, nil
}

func (s *SQLiteStore) FinishOperation(id int64, status string) error {
	_, err := s.db.Exec(`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UnixMilli(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteStore) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var op model.Operation
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&op.ID, &started, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
