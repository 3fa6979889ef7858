package carlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"carlog/internal/model"
)

// Restore states.
const (
	StateIdle           = "idle"
	StateValidating     = "validating"
	StateSnapshotting   = "snapshotting"
	StateClearing       = "clearing"
	StateLoading        = "loading"
	StateCommitted      = "committed"
	StateRollingBack    = "rolling_back"
	StateRolledBack     = "rolled_back"
	StateRollbackFailed = "rollback_failed"
	StateRejected       = "rejected"
)

// Restore events.
const (
	eventStart        = "start"
	eventValidated    = "validated"
	eventReject       = "reject"
	eventSnapshotted  = "snapshotted"
	eventCleared      = "cleared"
	eventLoaded       = "loaded"
	eventFail         = "fail"
	eventRecovered    = "recovered"
	eventRollbackFail = "rollback_fail"
)

// RestoreResult reports the outcome of a restore attempt.
type RestoreResult struct {
	Success            bool
	FinalState         string
	CarsRestored       int
	ActivitiesRestored int
	ImagesRestored     int
	RemindersRestored  int
	Warnings           []string
	Transitions        []string // "from->to" in order
}

// RestoreOrchestrator replaces the live dataset with the content of an
// archive. Failures after live data was touched are compensated by
// replaying an in-memory snapshot of the previous dataset.
type RestoreOrchestrator struct {
	codec   ArchiveCodec
	store   DataStore
	files   FileStore
	builder *BackupBuilder
	guard   *StoreGuard
	logger  Logger
	idgen   IDGenerator

	// SafetyArchive also writes the pre-restore snapshot to the backups
	// directory before clearing.
	SafetyArchive bool
}

// NewRestoreOrchestrator creates an orchestrator. builder must share guard.
func NewRestoreOrchestrator(codec ArchiveCodec, store DataStore, files FileStore, builder *BackupBuilder, guard *StoreGuard, logger Logger, idgen IDGenerator) *RestoreOrchestrator {
	return &RestoreOrchestrator{
		codec:   codec,
		store:   store,
		files:   files,
		builder: builder,
		guard:   guard,
		logger:  logger,
		idgen:   idgen,
	}
}

// Restore runs a full restore from archivePath. A context that is already
// done declines the restore. Once started, expiry of ctx is treated as a
// failure and triggers rollback; the restore is never abandoned midway.
//
// The result is non-nil whenever the restore started. The error is nil only
// when the final state is committed.
func (o *RestoreOrchestrator) Restore(ctx context.Context, archivePath string) (*RestoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("restore not started: %w", err)
	}
	if !o.guard.restore.TryLock() {
		return nil, NewError(KindBusy, "restore already in progress", nil)
	}
	defer o.guard.restore.Unlock()

	run := o.newRun(archivePath)
	defer run.release()

	return run.execute(ctx)
}

// phaseResult is the outcome of one phase: the event to fire next and, for
// failures, the reason.
type phaseResult struct {
	event string
	err   error
}

type restoreRun struct {
	o       *RestoreOrchestrator
	path    string
	machine *fsm.FSM

	archive  *DecodedArchive
	snapshot *model.Dataset
	report   *loadReport

	cause       error
	rollbackErr error
	warnings    []string
	transitions []string
	locked      bool
}

func (o *RestoreOrchestrator) newRun(archivePath string) *restoreRun {
	r := &restoreRun{o: o, path: archivePath}
	r.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateValidating},
			{Name: eventValidated, Src: []string{StateValidating}, Dst: StateSnapshotting},
			{Name: eventReject, Src: []string{StateValidating, StateSnapshotting}, Dst: StateRejected},
			{Name: eventSnapshotted, Src: []string{StateSnapshotting}, Dst: StateClearing},
			{Name: eventCleared, Src: []string{StateClearing}, Dst: StateLoading},
			{Name: eventLoaded, Src: []string{StateLoading}, Dst: StateCommitted},
			{Name: eventFail, Src: []string{StateClearing, StateLoading}, Dst: StateRollingBack},
			{Name: eventRecovered, Src: []string{StateRollingBack}, Dst: StateRolledBack},
			{Name: eventRollbackFail, Src: []string{StateRollingBack}, Dst: StateRollbackFailed},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				r.transitions = append(r.transitions, e.Src+"->"+e.Dst)
				o.logger.Info("restore state changed", "from", e.Src, "to", e.Dst, "archive", archivePath)
			},
		},
	)
	return r
}

func (r *restoreRun) phases() map[string]func(context.Context) phaseResult {
	return map[string]func(context.Context) phaseResult{
		StateValidating:   r.validate,
		StateSnapshotting: r.takeSnapshot,
		StateClearing:     r.clear,
		StateLoading:      r.load,
		StateRollingBack:  r.rollBack,
	}
}

func (r *restoreRun) execute(ctx context.Context) (*RestoreResult, error) {
	// transitions must complete even after ctx expires
	fsmCtx := context.WithoutCancel(ctx)
	if err := r.machine.Event(fsmCtx, eventStart); err != nil {
		return nil, fmt.Errorf("starting restore: %w", err)
	}

	phases := r.phases()
	for {
		phase, ok := phases[r.machine.Current()]
		if !ok {
			break
		}
		res := phase(ctx)
		if res.err != nil && r.cause == nil {
			r.cause = res.err
		}
		if err := r.machine.Event(fsmCtx, res.event); err != nil {
			return nil, fmt.Errorf("restore transition %s from %s: %w", res.event, r.machine.Current(), err)
		}
	}

	return r.finish()
}

func (r *restoreRun) validate(context.Context) phaseResult {
	archive, err := r.o.codec.Decode(r.path)
	if err != nil {
		return phaseResult{eventReject, err}
	}
	r.archive = archive

	if err := Validate(archive.Dataset).Err(); err != nil {
		return phaseResult{eventReject, err}
	}
	r.warn(CheckImageFiles(archive.Dataset, archive)...)
	return phaseResult{eventValidated, nil}
}

func (r *restoreRun) takeSnapshot(ctx context.Context) phaseResult {
	if err := ctx.Err(); err != nil {
		return phaseResult{eventReject, NewError(KindStorageFailure, "restore deadline exceeded before snapshot", err)}
	}

	r.o.guard.store.Lock()
	r.locked = true

	snapshot, err := r.o.builder.buildSnapshot(nil)
	if err != nil {
		return phaseResult{eventReject, err}
	}
	r.snapshot = snapshot

	if r.o.SafetyArchive && len(snapshot.Cars) > 0 {
		file, err := r.o.builder.createBackup(snapshot)
		if err != nil {
			r.warn(fmt.Sprintf("pre-restore archive not written: %v", err))
		} else {
			r.o.logger.Info("pre-restore archive written", "path", file.Path)
		}
	}
	return phaseResult{eventSnapshotted, nil}
}

func (r *restoreRun) clear(ctx context.Context) phaseResult {
	if err := clearCars(ctx, r.o.store); err != nil {
		return phaseResult{eventFail, err}
	}
	return phaseResult{eventCleared, nil}
}

func (r *restoreRun) load(ctx context.Context) phaseResult {
	l := &loader{
		store:  r.o.store,
		placer: newArchivePlacer(r.archive, r.o.files, r.o.idgen),
		logger: r.o.logger,
	}
	rep, err := l.load(ctx, r.archive.Dataset)
	r.report = rep
	if err != nil {
		return phaseResult{eventFail, err}
	}
	r.warn(rep.Warnings...)
	return phaseResult{eventLoaded, nil}
}

func (r *restoreRun) rollBack(ctx context.Context) phaseResult {
	ctx = context.WithoutCancel(ctx)
	r.o.logger.Warn("restore failed, rolling back", "error", r.cause)

	if err := clearCars(ctx, r.o.store); err != nil {
		r.rollbackErr = err
		return phaseResult{eventRollbackFail, err}
	}

	l := &loader{store: r.o.store, placer: keepPlacer{}, logger: r.o.logger}
	if _, err := l.load(ctx, r.snapshot); err != nil {
		r.rollbackErr = err
		return phaseResult{eventRollbackFail, err}
	}

	if r.report != nil {
		r.deleteFiles(r.report.Written, nil)
	}
	return phaseResult{eventRecovered, nil}
}

func (r *restoreRun) finish() (*RestoreResult, error) {
	state := r.machine.Current()
	res := &RestoreResult{
		FinalState:  state,
		Transitions: r.transitions,
	}

	switch state {
	case StateCommitted:
		res.Success = true
		res.CarsRestored = r.report.Cars
		res.ActivitiesRestored = r.report.Activities
		res.ImagesRestored = r.report.Images
		res.RemindersRestored = r.report.Reminders
		r.removeReplacedFiles()
		res.Warnings = r.warnings
		r.o.logger.Info("restore committed", "cars", res.CarsRestored, "activities", res.ActivitiesRestored, "images", res.ImagesRestored)
		return res, nil

	case StateRejected:
		res.Warnings = r.warnings
		r.o.logger.Warn("restore rejected", "error", r.cause)
		return res, r.cause

	case StateRolledBack:
		res.Warnings = r.warnings
		err := NewError(KindStorageFailure, "restore failed and the previous data was restored", r.cause)
		r.o.logger.Error("restore rolled back", "error", r.cause)
		return res, err

	case StateRollbackFailed:
		res.Warnings = r.warnings
		err := NewError(KindRollbackFailed, "restore failed and rollback could not complete", errors.Join(r.cause, r.rollbackErr))
		r.o.logger.Error("rollback failed", "error", err)
		return res, err
	}

	return res, fmt.Errorf("restore stopped in non-terminal state %s", state)
}

// removeReplacedFiles deletes the image files of the dataset that was
// replaced, keeping any path the new dataset uses.
func (r *restoreRun) removeReplacedFiles() {
	if r.snapshot == nil {
		return
	}
	keep := make(map[string]bool, len(r.report.Written))
	for _, p := range r.report.Written {
		keep[p] = true
	}
	r.deleteFiles(append(r.snapshot.ImagePaths(), r.snapshot.ThumbnailPaths()...), keep)
}

func (r *restoreRun) deleteFiles(paths []string, keep map[string]bool) {
	for _, p := range paths {
		if keep[p] {
			continue
		}
		if err := r.o.files.Delete(p); err != nil {
			r.warn(fmt.Sprintf("could not delete image file %s: %v", p, err))
		}
	}
}

func (r *restoreRun) warn(msgs ...string) {
	for _, msg := range msgs {
		r.o.logger.Warn("restore warning", "message", msg)
		r.warnings = append(r.warnings, msg)
	}
}

func (r *restoreRun) release() {
	if r.locked {
		r.o.guard.store.Unlock()
		r.locked = false
	}
	if err := r.archive.Cleanup(); err != nil {
		r.o.logger.Warn("could not remove extraction directory", "dir", r.archive.Dir, "error", err)
	}
}

// clearCars deletes every live car. Activities, images, refueling details
// and reminders go with them through the store's cascade.
func clearCars(ctx context.Context, store DataStore) error {
	cars, err := store.ListCars()
	if err != nil {
		return NewError(KindStorageFailure, "listing cars to clear", err)
	}
	for _, car := range cars {
		if err := checkDeadline(ctx); err != nil {
			return err
		}
		if err := store.DeleteCar(car.ID); err != nil {
			return NewError(KindStorageFailure, fmt.Sprintf("deleting car %d", car.ID), err)
		}
	}
	return nil
}
