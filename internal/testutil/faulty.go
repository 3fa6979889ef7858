package testutil

import (
	"errors"
	"fmt"
	"sync"

	"carlog/internal/carlog"
	"carlog/internal/model"
)

// ErrInjected is returned by FaultyStore for armed operations.
var ErrInjected = errors.New("injected failure")

// Operation names accepted by FaultyStore.
const (
	OpListCars               = "ListCars"
	OpDeleteCar              = "DeleteCar"
	OpInsertCar              = "InsertCar"
	OpInsertActivity         = "InsertActivity"
	OpInsertImage            = "InsertImage"
	OpInsertReminder         = "InsertReminder"
	OpInsertRefuelingDetails = "InsertRefuelingDetails"
)

type fault struct {
	at     int  // 1-based call number, counted from arming
	sticky bool // keep failing after the first failure
	calls  int
}

// FaultyStore wraps a DataStore and fails selected operations on demand.
// Operations that are not armed pass through unchanged.
type FaultyStore struct {
	carlog.DataStore

	mu     sync.Mutex
	faults map[string]*fault
}

// NewFaultyStore wraps store with no faults armed.
func NewFaultyStore(store carlog.DataStore) *FaultyStore {
	return &FaultyStore{DataStore: store, faults: make(map[string]*fault)}
}

// FailOnce makes only the n-th call of op fail.
func (f *FaultyStore) FailOnce(op string, n int) {
	f.arm(op, n, false)
}

// FailFrom makes the n-th call of op and every call after it fail.
func (f *FaultyStore) FailFrom(op string, n int) {
	f.arm(op, n, true)
}

// Reset disarms every fault.
func (f *FaultyStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[string]*fault)
}

func (f *FaultyStore) arm(op string, n int, sticky bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = &fault{at: n, sticky: sticky}
}

func (f *FaultyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ft, ok := f.faults[op]
	if !ok {
		return nil
	}
	ft.calls++
	if ft.calls == ft.at || (ft.sticky && ft.calls > ft.at) {
		return fmt.Errorf("%s call %d: %w", op, ft.calls, ErrInjected)
	}
	return nil
}

func (f *FaultyStore) ListCars() ([]*model.Car, error) {
	if err := f.check(OpListCars); err != nil {
		return nil, err
	}
	return f.DataStore.ListCars()
}

func (f *FaultyStore) DeleteCar(id int64) error {
	if err := f.check(OpDeleteCar); err != nil {
		return err
	}
	return f.DataStore.DeleteCar(id)
}

func (f *FaultyStore) InsertCar(car *model.Car) (int64, error) {
	if err := f.check(OpInsertCar); err != nil {
		return 0, err
	}
	return f.DataStore.InsertCar(car)
}

func (f *FaultyStore) InsertActivity(a *model.Activity) (int64, error) {
	if err := f.check(OpInsertActivity); err != nil {
		return 0, err
	}
	return f.DataStore.InsertActivity(a)
}

func (f *FaultyStore) InsertImage(img *model.ActivityImage) (int64, error) {
	if err := f.check(OpInsertImage); err != nil {
		return 0, err
	}
	return f.DataStore.InsertImage(img)
}

func (f *FaultyStore) InsertReminder(r *model.Reminder) (int64, error) {
	if err := f.check(OpInsertReminder); err != nil {
		return 0, err
	}
	return f.DataStore.InsertReminder(r)
}

func (f *FaultyStore) InsertRefuelingDetails(rd *model.RefuelingDetails) error {
	if err := f.check(OpInsertRefuelingDetails); err != nil {
		return err
	}
	return f.DataStore.InsertRefuelingDetails(rd)
}
