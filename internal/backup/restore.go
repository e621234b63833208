package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pders01/rollguard/internal/models"
	"github.com/spf13/afero"
)

// ItemFailure is a top-level tree entry that could not be processed
type ItemFailure struct {
	Name       string
	Err        error
	Permission bool
}

func (f ItemFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

// Report summarizes a restore or clear pass over top-level entries
type Report struct {
	Restored int
	Removed  int
	Skipped  []string
	Failures []ItemFailure
}

// Unrecoverable reports whether any failure was something other than a
// permission error. Permission errors are absorbed per item.
func (r *Report) Unrecoverable() bool {
	for _, f := range r.Failures {
		if !f.Permission {
			return true
		}
	}
	return false
}

// FailureStrings renders failures for logs and the ledger
func (r *Report) FailureStrings() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.String())
	}
	return out
}

func (r *Report) fail(name string, err error) {
	r.Failures = append(r.Failures, ItemFailure{
		Name:       name,
		Err:        err,
		Permission: errors.Is(err, fs.ErrPermission),
	})
}

// Restore copies snapshot contents into targetRoot. Deny-listed names are
// skipped so they are never overwritten. Per-item failures are recorded and
// the pass continues with the remaining entries.
func (e *Engine) Restore(ctx context.Context, snap *models.Snapshot, targetRoot string) (*Report, error) {
	if !e.Exists(snap) {
		return nil, ErrSnapshotMissing
	}

	infos, err := afero.ReadDir(e.fs, snap.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", snap.Path, err)
	}

	report := &Report{}
	for _, info := range infos {
		name := info.Name()
		if e.policy.Denied(name) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if _, err := e.copyTree(ctx, filepath.Join(snap.Path, name), filepath.Join(targetRoot, name), true); err != nil {
			e.logger.Warn("failed to restore entry", "entry", name, "error", err)
			report.fail(name, err)
			continue
		}
		report.Restored++
	}

	e.logger.Info("restore finished", "snapshot", snap.Path, "restored", report.Restored,
		"skipped", len(report.Skipped), "failures", len(report.Failures))
	return report, nil
}

// ClearTree deletes every top-level entry of root that is not deny-listed.
// The backup directory is never touched.
func (e *Engine) ClearTree(ctx context.Context, root string) (*Report, error) {
	infos, err := afero.ReadDir(e.fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree %s: %w", root, err)
	}

	report := &Report{}
	backupDir := filepath.Clean(e.dir)
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := info.Name()
		path := filepath.Join(root, name)
		if e.policy.Denied(name) || filepath.Clean(path) == backupDir {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if err := e.fs.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove entry", "entry", name, "error", err)
			report.fail(name, err)
			continue
		}
		report.Removed++
	}
	return report, nil
}

// SafetyBackup copies only the critical files of root into a fresh safety
// directory and returns its path
func (e *Engine) SafetyBackup(ctx context.Context, root string) (string, error) {
	if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path, err := e.uniquePath(models.SafetyDirName(e.now()))
	if err != nil {
		return "", err
	}
	if err := e.fs.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create safety backup: %w", err)
	}

	for _, name := range e.policy.CriticalFiles {
		src := filepath.Join(root, name)
		exists, err := afero.Exists(e.fs, src)
		if err != nil {
			e.removeQuietly(path)
			return "", fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if !exists {
			continue
		}
		if _, err := e.copyTree(ctx, src, filepath.Join(path, name), false); err != nil {
			e.removeQuietly(path)
			return "", fmt.Errorf("failed to copy %s into safety backup: %w", name, err)
		}
	}

	e.logger.Info("safety backup created", "path", path)
	return path, nil
}

// RestoreSafety puts every entry of a safety backup back into root,
// replacing whatever is there
func (e *Engine) RestoreSafety(ctx context.Context, safetyPath, root string) error {
	infos, err := afero.ReadDir(e.fs, safetyPath)
	if err != nil {
		return fmt.Errorf("failed to read safety backup: %w", err)
	}

	var errs []error
	for _, info := range infos {
		name := info.Name()
		if e.policy.Denied(name) {
			continue
		}
		target := filepath.Join(root, name)
		if err := e.fs.RemoveAll(target); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if _, err := e.copyTree(ctx, filepath.Join(safetyPath, name), target, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("safety restore incomplete: %w", err)
	}
	e.logger.Info("restored from safety backup", "path", safetyPath)
	return nil
}

// RemoveSafety deletes a safety backup that is no longer needed
func (e *Engine) RemoveSafety(path string) error {
	return e.fs.RemoveAll(path)
}

// CheckRequired verifies that every required file exists under root
func (e *Engine) CheckRequired(root string) error {
	var missing []string
	for _, name := range e.policy.RequiredFiles {
		exists, err := afero.Exists(e.fs, filepath.Join(root, name))
		if err != nil || !exists {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrIntegrity, missing)
	}
	return nil
}
