// Package rollback restores the project tree to a recorded version.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/git"
	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/store"
)

// State is a step of the rollback state machine
type State string

const (
	StateIdle               State = "idle"
	StateSafetyBackup       State = "safety_backup"
	StateRestoring          State = "restoring"
	StateVerifying          State = "verifying"
	StateCommitted          State = "committed"
	StateFailed             State = "failed"
	StateRestoredFromSafety State = "restored_from_safety"
)

var (
	ErrVersionNotFound  = errors.New("rollback target not found")
	ErrNoSnapshot       = errors.New("rollback target has no usable snapshot")
	ErrSafetyBackup     = errors.New("safety backup failed, rollback aborted")
	ErrRollbackFailed   = errors.New("rollback failed")
	ErrNoRollbackTarget = errors.New("no rollback target available")
)

// Reasons recorded with each attempt
const (
	ReasonManual    = "manual"
	ReasonStable    = "stable"
	ReasonEmergency = "emergency"
)

// Versions is the slice of the version store a rollback needs.
// *store.Store satisfies it.
type Versions interface {
	Root() string
	Get(id string) (*models.Version, error)
	BestStable() (*models.Version, error)
	Previous() (*models.Version, error)
	RecordRollback(attempt models.RollbackAttempt) (*models.Version, error)
	LockTree(ctx context.Context) (func(), error)
}

// Restorer performs the tree operations of a rollback.
// *backup.Engine satisfies it.
type Restorer interface {
	Exists(snap *models.Snapshot) bool
	Pin(path string)
	Unpin(path string)
	SafetyBackup(ctx context.Context, root string) (string, error)
	ClearTree(ctx context.Context, root string) (*backup.Report, error)
	Restore(ctx context.Context, snap *models.Snapshot, targetRoot string) (*backup.Report, error)
	CheckRequired(root string) error
	RestoreSafety(ctx context.Context, safetyPath, root string) error
	RemoveSafety(path string) error
}

// Result describes one rollback attempt
type Result struct {
	Target      string
	Reason      string
	State       State
	Transitions []State
	Report      *backup.Report
	SafetyPath  string
	Version     *models.Version
	Err         error
}

func (r *Result) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDirtyCheck replaces the uncommitted-changes probe run before a rollback
func WithDirtyCheck(f func(dir string) (bool, error)) Option {
	return func(c *Controller) { c.dirty = f }
}

// Controller runs rollbacks one at a time
type Controller struct {
	versions Versions
	engine   Restorer
	logger   *slog.Logger
	dirty    func(dir string) (bool, error)

	run   sync.Mutex
	mu    sync.Mutex
	state State
}

// New creates a rollback controller
func New(versions Versions, engine Restorer, opts ...Option) *Controller {
	c := &Controller{
		versions: versions,
		engine:   engine,
		logger:   slog.Default(),
		dirty:    git.HasUncommittedChanges,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the step the controller is currently in
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) set(res *Result, s State) {
	res.enter(s)
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("rollback state", "target", res.Target, "state", s)
}

// RollbackTo restores the tree to the snapshot of version id
func (c *Controller) RollbackTo(ctx context.Context, id string) (*Result, error) {
	return c.rollbackTo(ctx, id, ReasonManual)
}

// RollbackToStable rolls back to the best stable version
func (c *Controller) RollbackToStable(ctx context.Context) (*Result, error) {
	return c.rollbackToStable(ctx, ReasonStable)
}

func (c *Controller) rollbackToStable(ctx context.Context, reason string) (*Result, error) {
	best, err := c.versions.BestStable()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRollbackTarget, err)
	}
	return c.rollbackTo(ctx, best.ID, reason)
}

// EmergencyRollback tries the best stable version first and falls back to
// the version recorded before the current one
func (c *Controller) EmergencyRollback(ctx context.Context) (*Result, error) {
	c.logger.Warn("emergency rollback initiated")

	res, stableErr := c.rollbackToStable(ctx, ReasonEmergency)
	if stableErr == nil {
		return res, nil
	}
	c.logger.Warn("stable rollback failed, trying previous version", "error", stableErr)

	prev, err := c.versions.Previous()
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrNoRollbackTarget, errors.Join(stableErr, err))
	}
	res, err = c.rollbackTo(ctx, prev.ID, ReasonEmergency)
	if err != nil {
		c.logger.Error("emergency rollback exhausted all targets", "error", err)
		return res, err
	}
	return res, nil
}

// rollbackTo runs the full state machine. It ignores cancellation of ctx:
// once started, a rollback runs to completion or explicit failure.
func (c *Controller) rollbackTo(ctx context.Context, id, reason string) (*Result, error) {
	c.run.Lock()
	defer c.run.Unlock()
	ctx = context.WithoutCancel(ctx)

	res := &Result{Target: id, Reason: reason}
	res.enter(StateIdle)
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	v, err := c.versions.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrVersionNotFound, id)
		}
		return c.finish(res, err)
	}
	if !v.HasBackup() || !c.engine.Exists(v.BackupRef) {
		return c.finish(res, fmt.Errorf("%w: %s", ErrNoSnapshot, id))
	}

	c.engine.Pin(v.BackupRef.Path)
	defer c.engine.Unpin(v.BackupRef.Path)
	// a prune in another process may have removed it before the pin held
	if !c.engine.Exists(v.BackupRef) {
		return c.finish(res, fmt.Errorf("%w: %s", ErrNoSnapshot, id))
	}

	root := c.versions.Root()
	unlock, err := c.versions.LockTree(ctx)
	if err != nil {
		return c.finish(res, err)
	}
	defer unlock()

	if c.dirty != nil {
		if dirty, err := c.dirty(root); err == nil && dirty {
			c.logger.Warn("project tree has uncommitted changes; they will be lost", "root", root)
		}
	}

	c.set(res, StateSafetyBackup)
	safety, err := c.engine.SafetyBackup(ctx, root)
	if err != nil {
		c.set(res, StateFailed)
		return c.finish(res, fmt.Errorf("%w: %w", ErrSafetyBackup, err))
	}
	res.SafetyPath = safety

	c.set(res, StateRestoring)
	if err := c.restore(ctx, res, v.BackupRef, root); err != nil {
		return c.fail(ctx, res, root, err)
	}

	c.set(res, StateVerifying)
	if err := c.engine.CheckRequired(root); err != nil {
		return c.fail(ctx, res, root, err)
	}

	c.set(res, StateCommitted)
	if err := c.engine.RemoveSafety(safety); err != nil {
		c.logger.Warn("failed to remove safety backup", "path", safety, "error", err)
	}
	return c.finish(res, nil)
}

func (c *Controller) restore(ctx context.Context, res *Result, snap *models.Snapshot, root string) error {
	cleared, err := c.engine.ClearTree(ctx, root)
	if err != nil {
		return err
	}
	if cleared.Unrecoverable() {
		return fmt.Errorf("clearing tree: %v", cleared.FailureStrings())
	}

	report, err := c.engine.Restore(ctx, snap, root)
	if err != nil {
		return err
	}
	report.Removed = cleared.Removed
	report.Failures = append(cleared.Failures, report.Failures...)
	res.Report = report
	if report.Unrecoverable() {
		return fmt.Errorf("restoring snapshot: %v", report.FailureStrings())
	}
	return nil
}

// fail puts the safety backup back after a failed restore. The safety
// directory is kept for inspection.
func (c *Controller) fail(ctx context.Context, res *Result, root string, cause error) (*Result, error) {
	c.set(res, StateFailed)
	c.logger.Error("rollback failed, restoring safety backup", "target", res.Target, "error", cause)
	if err := c.engine.RestoreSafety(ctx, res.SafetyPath, root); err != nil {
		c.logger.Error("safety restore failed", "path", res.SafetyPath, "error", err)
		return c.finish(res, fmt.Errorf("%w: %w", ErrRollbackFailed, errors.Join(cause, err)))
	}
	c.set(res, StateRestoredFromSafety)
	return c.finish(res, fmt.Errorf("%w: %w", ErrRollbackFailed, cause))
}

// finish records the attempt in the store and settles the result
func (c *Controller) finish(res *Result, err error) (*Result, error) {
	res.Err = err
	attempt := models.RollbackAttempt{
		Target: res.Target,
		Reason: res.Reason,
		OK:     err == nil,
		State:  string(res.State),
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	if res.Report != nil {
		attempt.Restored = res.Report.Restored
		attempt.Failures = res.Report.FailureStrings()
	}

	v, recErr := c.versions.RecordRollback(attempt)
	switch {
	case recErr != nil && err == nil:
		res.Err = fmt.Errorf("%w: %w", ErrRollbackFailed, recErr)
		c.logger.Error("failed to record rollback", "target", res.Target, "error", recErr)
		return res, res.Err
	case recErr != nil:
		c.logger.Error("failed to record rollback", "target", res.Target, "error", recErr)
	}
	res.Version = v

	if err != nil {
		c.logger.Warn("rollback attempt failed", "target", res.Target, "reason", res.Reason, "state", res.State, "error", err)
		return res, err
	}
	c.logger.Info("rollback committed", "target", res.Target, "reason", res.Reason, "rollback_count", v.RollbackCount)
	return res, nil
}
