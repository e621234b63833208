package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/pders01/rollguard/internal/models"
	"github.com/spf13/afero"
)

var (
	ErrInsufficientSpace = errors.New("insufficient disk space for snapshot")
	ErrPermissionDenied  = errors.New("backup directory is not writable")
	ErrIntegrity         = errors.New("snapshot failed integrity check")
	ErrCopyFailed        = errors.New("snapshot copy failed")
	ErrSnapshotMissing   = errors.New("snapshot does not exist")
)

const (
	writeProbe = ".rollguard_write_test"
	// pinDir holds one lock file per pinned snapshot, shared between
	// processes using the same backup directory
	pinDir = ".pins"
)

// Engine creates, verifies, restores and prunes full-tree snapshots
type Engine struct {
	fs     afero.Fs
	root   string
	dir    string
	policy Policy
	space  SpaceFunc
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	pinned map[string]*pin
}

type pin struct {
	count int
	lock  *flock.Flock
}

// Option configures an Engine
type Option func(*Engine)

// WithFs replaces the filesystem (afero.NewOsFs by default)
func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) { e.fs = fsys }
}

// WithSpaceFunc replaces the free space probe
func WithSpaceFunc(f SpaceFunc) Option {
	return func(e *Engine) { e.space = f }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine that snapshots root into dir
func New(root, dir string, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		fs:     afero.NewOsFs(),
		root:   root,
		dir:    dir,
		policy: policy,
		space:  FreeSpace,
		logger: slog.Default(),
		now:    time.Now,
		pinned: make(map[string]*pin),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's protection policy
func (e *Engine) Policy() Policy { return e.policy }

// Dir returns the backup root
func (e *Engine) Dir() string { return e.dir }

// CreateSnapshot copies the project tree into a new snapshot directory and
// verifies it. Failures come back as a typed error together with an
// unverified snapshot handle; they are never fatal to the caller.
func (e *Engine) CreateSnapshot(ctx context.Context, versionID string) (*models.Snapshot, error) {
	now := e.now()
	snap := &models.Snapshot{CreatedAt: now}

	if err := e.checkPreconditions(); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientSpace):
			snap.Status = models.SnapshotInsufficientSpace
		default:
			snap.Status = models.SnapshotPermissionDenied
		}
		e.logger.Warn("skipping snapshot", "version", versionID, "error", err)
		return snap, err
	}

	path, err := e.uniquePath(models.SnapshotDirName(versionID, now))
	if err != nil {
		snap.Status = models.SnapshotCopyFailed
		return snap, fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}

	size, err := e.copyTree(ctx, e.root, path, true)
	if err != nil {
		e.removeQuietly(path)
		snap.Status = models.SnapshotCopyFailed
		if errors.Is(err, fs.ErrPermission) {
			snap.Status = models.SnapshotPermissionDenied
		}
		e.logger.Error("snapshot copy failed", "version", versionID, "error", err)
		return snap, fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	// Directory mtimes drive pruning order.
	if err := e.fs.Chtimes(path, now, now); err != nil {
		e.logger.Debug("failed to stamp snapshot mtime", "path", path, "error", err)
	}

	if err := e.verify(path, size); err != nil {
		e.removeQuietly(path)
		snap.Status = models.SnapshotIntegrityError
		e.logger.Error("snapshot integrity check failed", "version", versionID, "error", err)
		return snap, err
	}

	snap.Path = path
	snap.SizeBytes = size
	snap.Verified = true
	snap.Status = models.SnapshotOK
	e.logger.Info("snapshot created", "version", versionID, "path", path, "size", humanize.IBytes(uint64(size)))
	return snap, nil
}

func (e *Engine) checkPreconditions() error {
	if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if e.space != nil && e.policy.MinFreeBytes > 0 {
		free, err := e.space(e.dir)
		switch {
		case err != nil:
			// Unknown free space is not a reason to skip the backup.
			e.logger.Warn("failed to check free space", "dir", e.dir, "error", err)
		case free < e.policy.MinFreeBytes:
			return fmt.Errorf("%w: %s free, %s required", ErrInsufficientSpace,
				humanize.IBytes(free), humanize.IBytes(e.policy.MinFreeBytes))
		}
	}

	probe := filepath.Join(e.dir, writeProbe)
	if err := afero.WriteFile(e.fs, probe, []byte("test"), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := e.fs.Remove(probe); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

func (e *Engine) uniquePath(name string) (string, error) {
	path := filepath.Join(e.dir, name)
	for i := 1; ; i++ {
		exists, err := afero.Exists(e.fs, path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
		path = filepath.Join(e.dir, fmt.Sprintf("%s_%d", name, i))
	}
}

func (e *Engine) verify(path string, size int64) error {
	for _, name := range e.policy.RequiredFiles {
		exists, err := afero.Exists(e.fs, filepath.Join(path, name))
		if err != nil || !exists {
			return fmt.Errorf("%w: required file %s missing", ErrIntegrity, name)
		}
	}
	if size < e.policy.MinSizeBytes {
		return fmt.Errorf("%w: snapshot size %s below minimum %s", ErrIntegrity,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(e.policy.MinSizeBytes)))
	}
	return nil
}

// copyTree copies src to dst and returns the number of bytes copied. With
// filter set, deny-listed entries are skipped at every depth.
func (e *Engine) copyTree(ctx context.Context, src, dst string, filter bool) (int64, error) {
	var total int64
	backupDir := filepath.Clean(e.dir)

	err := afero.Walk(e.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && filter && (e.policy.Denied(info.Name()) || filepath.Clean(path) == backupDir) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return e.fs.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			return e.copySymlink(path, target)
		case info.Mode().IsRegular():
			n, err := e.copyFile(path, target, info)
			total += n
			return err
		default:
			// Sockets, devices and pipes are not part of a project tree.
			return nil
		}
	})
	return total, err
}

func (e *Engine) copyFile(src, dst string, info os.FileInfo) (int64, error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := e.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	out, err := e.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if err := e.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		e.logger.Debug("failed to preserve mtime", "path", dst, "error", err)
	}
	return n, nil
}

func (e *Engine) copySymlink(src, dst string) error {
	reader, ok := e.fs.(afero.LinkReader)
	linker, ok2 := e.fs.(afero.Linker)
	if !ok || !ok2 {
		e.logger.Debug("filesystem cannot copy symlinks, skipping", "path", src)
		return nil
	}
	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	_ = e.fs.Remove(dst)
	return linker.SymlinkIfPossible(target, dst)
}

func (e *Engine) removeQuietly(path string) {
	if err := e.fs.RemoveAll(path); err != nil {
		e.logger.Warn("failed to remove partial snapshot", "path", path, "error", err)
	}
}

// Exists reports whether a snapshot's directory is still on disk
func (e *Engine) Exists(snap *models.Snapshot) bool {
	if snap == nil || snap.Path == "" {
		return false
	}
	ok, err := afero.DirExists(e.fs, snap.Path)
	return err == nil && ok
}

// Entry describes one stored snapshot directory
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
}

// List returns stored version snapshots, oldest first
func (e *Engine) List() ([]Entry, error) {
	infos, err := afero.ReadDir(e.fs, e.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var entries []Entry
	for _, info := range infos {
		if !info.IsDir() || !models.IsSnapshotDir(info.Name()) {
			continue
		}
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    filepath.Join(e.dir, info.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModTime.Before(entries[j].ModTime)
	})
	return entries, nil
}

// Pin protects a snapshot from pruning until Unpin is called. On the OS
// filesystem the pin is a shared flock on the snapshot's pin file, so
// PruneOldest in another process skips it too.
func (e *Engine) Pin(path string) {
	key := filepath.Clean(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pinned[key]; ok {
		p.count++
		return
	}
	p := &pin{count: 1}
	if e.sharedPins() {
		if err := e.fs.MkdirAll(filepath.Join(e.dir, pinDir), 0755); err != nil {
			e.logger.Warn("snapshot pin is process-local", "path", key, "error", err)
		} else {
			l := flock.New(e.pinPath(key))
			if err := l.RLock(); err != nil {
				e.logger.Warn("snapshot pin is process-local", "path", key, "error", err)
			} else {
				p.lock = l
			}
		}
	}
	e.pinned[key] = p
}

// Unpin releases a Pin
func (e *Engine) Unpin(path string) {
	key := filepath.Clean(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pinned[key]
	if !ok {
		return
	}
	if p.count > 1 {
		p.count--
		return
	}
	delete(e.pinned, key)
	if p.lock != nil {
		if err := p.lock.Unlock(); err != nil {
			e.logger.Warn("failed to release snapshot pin", "path", key, "error", err)
		}
	}
}

func (e *Engine) isPinned(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pinned[filepath.Clean(path)]
	return ok
}

// claim takes the exclusive pin lock for a snapshot about to be deleted.
// It reports false while any process holds a pin on it.
func (e *Engine) claim(path string) (release func(), ok bool) {
	if !e.sharedPins() {
		return func() {}, true
	}
	if err := e.fs.MkdirAll(filepath.Join(e.dir, pinDir), 0755); err != nil {
		e.logger.Warn("failed to check snapshot pin", "path", path, "error", err)
		return nil, false
	}
	pinPath := e.pinPath(path)
	l := flock.New(pinPath)
	locked, err := l.TryLock()
	if err != nil {
		e.logger.Warn("failed to check snapshot pin", "path", path, "error", err)
		return nil, false
	}
	if !locked {
		return nil, false
	}
	return func() {
		_ = os.Remove(pinPath)
		_ = l.Unlock()
	}, true
}

func (e *Engine) sharedPins() bool {
	_, ok := e.fs.(*afero.OsFs)
	return ok
}

func (e *Engine) pinPath(path string) string {
	return filepath.Join(e.dir, pinDir, filepath.Base(path)+".lock")
}

// PruneOldest deletes the oldest snapshots by modification time until at
// most keep remain. Snapshots pinned by this or any other process are never
// deleted.
func (e *Engine) PruneOldest(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := e.List()
	if err != nil {
		return nil, err
	}

	var removed []string
	excess := len(entries) - keep
	for _, entry := range entries {
		if excess <= 0 {
			break
		}
		if e.isPinned(entry.Path) {
			e.logger.Info("keeping pinned snapshot", "path", entry.Path)
			continue
		}
		release, ok := e.claim(entry.Path)
		if !ok {
			e.logger.Info("keeping snapshot pinned by another process", "path", entry.Path)
			continue
		}
		err := e.fs.RemoveAll(entry.Path)
		release()
		if err != nil {
			e.logger.Error("failed to prune snapshot", "path", entry.Path, "error", err)
			continue
		}
		e.logger.Info("pruned snapshot", "path", entry.Path)
		removed = append(removed, entry.Path)
		excess--
	}
	return removed, nil
}
