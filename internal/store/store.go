// Package store keeps the version history, the current-version pointer and
// the stable index of a project tree.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/changelog"
	"github.com/pders01/rollguard/internal/git"
	"github.com/pders01/rollguard/internal/models"
)

var (
	ErrInvalidID        = errors.New("version id must not be empty")
	ErrInvalidScore     = errors.New("stability score must be within [0, 100]")
	ErrDuplicateVersion = errors.New("version already exists")
	ErrNotFound         = errors.New("version not found")
	ErrNoStableVersion  = errors.New("no stable version available")
)

// Snapshotter captures and retires tree snapshots on behalf of the store.
// *backup.Engine satisfies it.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, versionID string) (*models.Snapshot, error)
	PruneOldest(keep int) ([]string, error)
	List() ([]backup.Entry, error)
}

// Options configures a Store
type Options struct {
	Root               string
	StateDir           string
	StabilityThreshold float64
	AutoBackup         bool
	Keep               int
	Snapshotter        Snapshotter
	Changelog          *changelog.Writer
	Logger             *slog.Logger
	Now                func() time.Time
	Identity           func(dir string) (commitRef, author string)
}

// Store is the persistent version registry. All methods are safe for
// concurrent use, and the ledger is guarded by a file lock so that several
// processes may share one state directory.
type Store struct {
	root        string
	dir         string
	threshold   float64
	autoBackup  bool
	keep        int
	snapshotter Snapshotter
	changelog   *changelog.Writer
	logger      *slog.Logger
	now         func() time.Time
	identity    func(dir string) (string, string)

	mu         sync.Mutex
	ledgerLock *flock.Flock
	versions   []*models.Version
	index      map[string]int
	current    string
	stable     []models.StableEntry
	attempts   []models.RollbackAttempt
	lastUpdate time.Time
}

// Open prepares the state directory and loads the persisted ledger
func Open(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("project root must be set")
	}
	if opts.StateDir == "" {
		opts.StateDir = filepath.Join(opts.Root, ".rollguard")
	}
	if err := validScore(opts.StabilityThreshold); err != nil {
		return nil, fmt.Errorf("invalid stability threshold: %w", err)
	}
	if err := os.MkdirAll(opts.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &Store{
		root:        opts.Root,
		dir:         opts.StateDir,
		threshold:   opts.StabilityThreshold,
		autoBackup:  opts.AutoBackup,
		keep:        opts.Keep,
		snapshotter: opts.Snapshotter,
		changelog:   opts.Changelog,
		logger:      opts.Logger,
		now:         opts.Now,
		identity:    opts.Identity,
		ledgerLock:  flock.New(filepath.Join(opts.StateDir, lockFile)),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.identity == nil {
		s.identity = git.Identity
	}
	if s.changelog == nil {
		s.changelog = changelog.NewWriter(filepath.Join(opts.StateDir, "CHANGELOG.md"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledgerLock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer s.ledgerLock.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the state directory
func (s *Store) Dir() string { return s.dir }

// Root returns the project root the store describes
func (s *Store) Root() string { return s.root }

// load replays the ledger and reads the pointer and stable index.
// Callers hold s.mu and the ledger lock.
func (s *Store) load() error {
	records, err := readLedger(s.dir, s.logger)
	if err != nil {
		return err
	}

	s.versions = nil
	s.index = make(map[string]int)
	s.attempts = nil
	s.lastUpdate = time.Time{}
	for _, r := range records {
		switch r.Op {
		case opCreate:
			if r.Version == nil {
				continue
			}
			if _, dup := s.index[r.Version.ID]; dup {
				s.logger.Warn("duplicate version in ledger", "version", r.Version.ID)
				continue
			}
			v := *r.Version
			v.RollbackCount = 0
			s.index[v.ID] = len(s.versions)
			s.versions = append(s.versions, &v)
		case opRollback:
			if r.Attempt == nil {
				continue
			}
			s.attempts = append(s.attempts, *r.Attempt)
			if r.Attempt.OK {
				if i, ok := s.index[r.Attempt.Target]; ok {
					s.versions[i].RollbackCount++
				}
			}
		}
		if r.At.After(s.lastUpdate) {
			s.lastUpdate = r.At
		}
	}

	var p pointer
	found, err := readJSON(filepath.Join(s.dir, currentFile), &p)
	if err != nil {
		return err
	}
	switch {
	case found:
		s.current = p.Version
	case len(s.versions) > 0:
		s.current = s.versions[len(s.versions)-1].ID
	default:
		s.current = ""
	}

	var stable []models.StableEntry
	found, err = readJSON(filepath.Join(s.dir, stableFile), &stable)
	if err != nil {
		return err
	}
	if !found {
		stable = nil
		for _, v := range s.versions {
			if v.IsStable {
				stable = append(stable, stableEntry(v))
			}
		}
	}
	s.stable = stable
	return nil
}

// exclusive runs fn holding the in-process mutex and the exclusive ledger
// lock, with state freshly reloaded from disk.
func (s *Store) exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledgerLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer s.ledgerLock.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	return fn()
}

// shared is the read-only counterpart of exclusive
func (s *Store) shared(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledgerLock.RLock(); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer s.ledgerLock.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	return fn()
}

// CreateVersion records a new version. When auto-backup is on a snapshot of
// the tree is taken first; a failed snapshot is logged and the version is
// recorded without a backup reference.
func (s *Store) CreateVersion(ctx context.Context, id, description string, notes []string, score float64) (*models.Version, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := validScore(score); err != nil {
		return nil, err
	}

	var created models.Version
	err := s.exclusive(func() error {
		if _, dup := s.index[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, id)
		}

		commitRef, author := s.identity(s.root)
		v := &models.Version{
			ID:             id,
			CommitRef:      commitRef,
			CreatedAt:      s.now(),
			Author:         author,
			Description:    description,
			ChangeNotes:    append([]string(nil), notes...),
			StabilityScore: score,
			IsStable:       score >= s.threshold,
		}

		if s.autoBackup && s.snapshotter != nil {
			snap, err := s.snapshotter.CreateSnapshot(ctx, id)
			switch {
			case err != nil:
				s.logger.Warn("snapshot failed, recording version without backup", "version", id, "error", err)
			case snap.Usable():
				v.BackupRef = snap
			default:
				s.logger.Warn("snapshot not verified, recording version without backup", "version", id, "status", snap.Status)
			}
		}

		if err := appendRecord(s.dir, record{Op: opCreate, At: v.CreatedAt, Version: v}); err != nil {
			return err
		}
		s.index[id] = len(s.versions)
		s.versions = append(s.versions, v)
		s.lastUpdate = v.CreatedAt

		if err := s.setCurrentLocked(id); err != nil {
			return err
		}
		if v.IsStable {
			s.stable = append(s.stable, stableEntry(v))
			if err := writeJSONAtomic(filepath.Join(s.dir, stableFile), s.stable); err != nil {
				return err
			}
		}

		if err := s.changelog.Append(v); err != nil {
			s.logger.Warn("failed to update changelog", "version", id, "error", err)
		}
		if s.autoBackup && s.snapshotter != nil && s.keep > 0 {
			if removed, err := s.snapshotter.PruneOldest(s.keep); err != nil {
				s.logger.Warn("snapshot pruning failed", "error", err)
			} else if len(removed) > 0 {
				s.logger.Info("pruned old snapshots", "count", len(removed))
			}
		}

		created = *v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("version created", "version", created.ID, "stable", created.IsStable, "score", created.StabilityScore)
	return &created, nil
}

// History returns all versions in creation order
func (s *Store) History() ([]models.Version, error) {
	var out []models.Version
	err := s.shared(func() error {
		out = make([]models.Version, len(s.versions))
		for i, v := range s.versions {
			out[i] = *v
		}
		return nil
	})
	return out, err
}

// Get returns the version with the given id
func (s *Store) Get(id string) (*models.Version, error) {
	var out *models.Version
	err := s.shared(func() error {
		v, err := s.lookup(id)
		out = v
		return err
	})
	return out, err
}

// Current returns the version the current pointer names
func (s *Store) Current() (*models.Version, error) {
	var out *models.Version
	err := s.shared(func() error {
		if s.current == "" {
			return ErrNotFound
		}
		v, err := s.lookup(s.current)
		out = v
		return err
	})
	return out, err
}

// BestStable returns the stable version with the highest score. Ties go to
// the most recently created version.
func (s *Store) BestStable() (*models.Version, error) {
	var out *models.Version
	err := s.shared(func() error {
		var best *models.Version
		for _, e := range s.stable {
			i, ok := s.index[e.VersionID]
			if !ok {
				continue
			}
			v := s.versions[i]
			if best == nil ||
				v.StabilityScore > best.StabilityScore ||
				(v.StabilityScore == best.StabilityScore && v.CreatedAt.After(best.CreatedAt)) {
				best = v
			}
		}
		if best == nil {
			return ErrNoStableVersion
		}
		cp := *best
		out = &cp
		return nil
	})
	return out, err
}

// StableVersions returns the stable index in insertion order
func (s *Store) StableVersions() ([]models.StableEntry, error) {
	var out []models.StableEntry
	err := s.shared(func() error {
		out = append([]models.StableEntry(nil), s.stable...)
		return nil
	})
	return out, err
}

// Previous returns the version recorded immediately before the current one.
// With no resolvable current pointer the second-most-recent version is used.
func (s *Store) Previous() (*models.Version, error) {
	var out *models.Version
	err := s.shared(func() error {
		if len(s.versions) < 2 {
			return fmt.Errorf("%w: fewer than two versions recorded", ErrNotFound)
		}
		i, ok := s.index[s.current]
		if !ok {
			i = len(s.versions) - 1
		}
		if i == 0 {
			return fmt.Errorf("%w: no version before %s", ErrNotFound, s.current)
		}
		cp := *s.versions[i-1]
		out = &cp
		return nil
	})
	return out, err
}

// RecordRollback appends a rollback attempt to the ledger. A successful
// attempt moves the current pointer to its target and bumps the target's
// rollback count.
func (s *Store) RecordRollback(attempt models.RollbackAttempt) (*models.Version, error) {
	if attempt.At.IsZero() {
		attempt.At = s.now()
	}
	var out *models.Version
	err := s.exclusive(func() error {
		i, ok := s.index[attempt.Target]
		if attempt.OK && !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, attempt.Target)
		}
		if err := appendRecord(s.dir, record{Op: opRollback, At: attempt.At, Attempt: &attempt}); err != nil {
			return err
		}
		s.attempts = append(s.attempts, attempt)
		s.lastUpdate = attempt.At
		if !ok {
			return nil
		}
		if attempt.OK {
			s.versions[i].RollbackCount++
			if err := s.setCurrentLocked(attempt.Target); err != nil {
				return err
			}
		}
		cp := *s.versions[i]
		out = &cp
		return nil
	})
	return out, err
}

// Attempts returns every recorded rollback attempt, oldest first
func (s *Store) Attempts() ([]models.RollbackAttempt, error) {
	var out []models.RollbackAttempt
	err := s.shared(func() error {
		out = append([]models.RollbackAttempt(nil), s.attempts...)
		return nil
	})
	return out, err
}

// CheckStability derives a score from how often a version has been rolled
// back to: 90 minus 10 per rollback, never below zero.
func (s *Store) CheckStability(id string) (float64, error) {
	v, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return math.Max(0, 90-10*float64(v.RollbackCount)), nil
}

// Status summarizes the store for operators
func (s *Store) Status() (models.ProjectStatus, error) {
	var st models.ProjectStatus
	err := s.shared(func() error {
		st = models.ProjectStatus{
			CurrentVersion:      s.current,
			TotalVersions:       len(s.versions),
			StableVersionsCount: len(s.stable),
			LastUpdate:          s.lastUpdate,
			AutoBackupEnabled:   s.autoBackup,
			StabilityThreshold:  s.threshold,
			RollbackAttempts:    len(s.attempts),
		}
		if i, ok := s.index[s.current]; ok {
			v := s.versions[i]
			st.CurrentStabilityScore = v.StabilityScore
			st.CurrentIsStable = v.IsStable
			st.CurrentRollbackCount = v.RollbackCount
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	if s.snapshotter != nil {
		entries, err := s.snapshotter.List()
		if err != nil {
			s.logger.Warn("failed to list snapshots", "error", err)
		}
		st.SnapshotCount = len(entries)
	}
	return st, nil
}

// SetStabilityThreshold changes the threshold applied to future versions.
// Existing stable flags are left as recorded.
func (s *Store) SetStabilityThreshold(t float64) error {
	if err := validScore(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.threshold = t
	s.mu.Unlock()
	return nil
}

// SetAutoBackup toggles snapshot capture on version creation
func (s *Store) SetAutoBackup(enabled bool) {
	s.mu.Lock()
	s.autoBackup = enabled
	s.mu.Unlock()
}

// LockTree takes the exclusive project-tree lock, waiting until ctx is done.
// Writers that cooperate with rollbacks take the same lock.
func (s *Store) LockTree(ctx context.Context) (func(), error) {
	l := flock.New(filepath.Join(s.dir, treeLock))
	ok, err := l.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to lock project tree: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock project tree: %w", ctx.Err())
	}
	return func() { _ = l.Unlock() }, nil
}

func (s *Store) lookup(id string) (*models.Version, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *s.versions[i]
	return &cp, nil
}

func (s *Store) setCurrentLocked(id string) error {
	if err := writeJSONAtomic(filepath.Join(s.dir, currentFile), pointer{Version: id, UpdatedAt: s.now()}); err != nil {
		return err
	}
	s.current = id
	return nil
}

func stableEntry(v *models.Version) models.StableEntry {
	e := models.StableEntry{
		VersionID:      v.ID,
		StabilityScore: v.StabilityScore,
		CreatedAt:      v.CreatedAt,
	}
	if v.BackupRef != nil {
		e.SnapshotRef = v.BackupRef.Path
	}
	return e
}

func validScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return ErrInvalidScore
	}
	return nil
}
