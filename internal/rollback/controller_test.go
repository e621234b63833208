package rollback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/logging"
	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/store"
	"github.com/pders01/rollguard/internal/testutil"
)

var testDeny = []string{".rollguard", ".git", "backups", "logs", "*.tmp"}

type fixture struct {
	project *testutil.TempProject
	store   *store.Store
	engine  *backup.Engine
	ctrl    *Controller
}

func newFixture(t *testing.T, wrap func(Restorer) Restorer) *fixture {
	t.Helper()
	project := testutil.NewTempProject(t)
	engine := backup.New(project.Root, filepath.Join(project.Root, "backups"), backup.DefaultPolicy(testDeny),
		backup.WithSpaceFunc(func(string) (uint64, error) { return 10 << 30, nil }),
		backup.WithLogger(logging.Discard()),
	)
	s, err := store.Open(store.Options{
		Root:               project.Root,
		StabilityThreshold: 80,
		AutoBackup:         true,
		Keep:               10,
		Snapshotter:        engine,
		Logger:             logging.Discard(),
		Identity:           func(string) (string, string) { return "abcdef12", "tester" },
	})
	require.NoError(t, err)

	var restorer Restorer = engine
	if wrap != nil {
		restorer = wrap(engine)
	}
	ctrl := New(s, restorer,
		WithLogger(logging.Discard()),
		WithDirtyCheck(func(string) (bool, error) { return false, nil }),
	)
	return &fixture{project: project, store: s, engine: engine, ctrl: ctrl}
}

func (f *fixture) create(t *testing.T, id string, score float64) *models.Version {
	t.Helper()
	v, err := f.store.CreateVersion(context.Background(), id, "release "+id, nil, score)
	require.NoError(t, err)
	require.True(t, v.HasBackup(), "snapshot for %s should be verified", id)
	return v
}

func (f *fixture) safetyDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.project.Root, "backups"))
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if models.IsSafetyDir(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out
}

type faultyRestorer struct {
	Restorer
	safetyErr  error
	restoreErr error
}

func (f faultyRestorer) SafetyBackup(ctx context.Context, root string) (string, error) {
	if f.safetyErr != nil {
		return "", f.safetyErr
	}
	return f.Restorer.SafetyBackup(ctx, root)
}

func (f faultyRestorer) Restore(ctx context.Context, snap *models.Snapshot, root string) (*backup.Report, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.Restorer.Restore(ctx, snap, root)
}

func TestRollbackRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.project.CreateFile("README.md", "# Release one\n")
	f.create(t, "1.0.0", 95)

	f.project.CreateFile("README.md", "# Release two\n")
	f.project.CreateFile("notes.txt", "added later")
	f.create(t, "1.0.1", 40)

	best, err := f.store.BestStable()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", best.ID)

	before, err := f.store.Get("1.0.0")
	require.NoError(t, err)

	res, err := f.ctrl.RollbackTo(ctx, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, []State{StateIdle, StateSafetyBackup, StateRestoring, StateVerifying, StateCommitted}, res.Transitions)
	assert.Equal(t, StateIdle, f.ctrl.State())

	assert.Equal(t, "# Release one\n", f.project.ReadFile("README.md"))
	assert.False(t, f.project.Exists("notes.txt"))
	assert.True(t, f.project.Exists("data/payload.bin"))
	assert.True(t, f.project.Exists(".rollguard/versions.jsonl"))

	current, err := f.store.Current()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", current.ID)
	assert.Equal(t, before.RollbackCount+1, current.RollbackCount)

	assert.Empty(t, f.safetyDirs(t))
}

func TestRollbackUnknownVersion(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.ctrl.RollbackTo(context.Background(), "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.Equal(t, err, res.Err)

	attempts, err := f.store.Attempts()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].OK)
}

func TestRollbackPrunedSnapshotLeavesTreeUntouched(t *testing.T) {
	f := newFixture(t, nil)
	v := f.create(t, "1.0.0", 95)
	f.create(t, "1.0.1", 95)

	require.NoError(t, os.RemoveAll(v.BackupRef.Path))
	f.project.CreateFile("README.md", "# Work in progress\n")
	f.project.CreateFile("draft.txt", "unsaved")

	res, err := f.ctrl.RollbackTo(context.Background(), "1.0.0")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.NotContains(t, res.Transitions, StateRestoring)

	assert.Equal(t, "# Work in progress\n", f.project.ReadFile("README.md"))
	assert.True(t, f.project.Exists("draft.txt"))

	current, err := f.store.Current()
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", current.ID)
}

func TestRollbackSafetyBackupFailureAborts(t *testing.T) {
	f := newFixture(t, func(r Restorer) Restorer {
		return faultyRestorer{Restorer: r, safetyErr: errors.New("disk full")}
	})
	f.create(t, "1.0.0", 95)
	f.project.CreateFile("draft.txt", "unsaved")

	res, err := f.ctrl.RollbackTo(context.Background(), "1.0.0")
	assert.ErrorIs(t, err, ErrSafetyBackup)
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, f.project.Exists("draft.txt"))
}

func TestRollbackRestoreFailureRestoresSafety(t *testing.T) {
	f := newFixture(t, func(r Restorer) Restorer {
		return faultyRestorer{Restorer: r, restoreErr: backup.ErrSnapshotMissing}
	})
	f.create(t, "1.0.0", 95)
	f.create(t, "1.0.1", 95)
	f.project.CreateFile("README.md", "# Before rollback\n")

	res, err := f.ctrl.RollbackTo(context.Background(), "1.0.0")
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.Equal(t, StateRestoredFromSafety, res.State)
	assert.Contains(t, res.Transitions, StateFailed)
	assert.Equal(t, "# Before rollback\n", f.project.ReadFile("README.md"))

	current, err := f.store.Current()
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", current.ID)
	assert.Equal(t, 0, current.RollbackCount)

	assert.Len(t, f.safetyDirs(t), 1, "safety backup is kept after a failed rollback")

	attempts, err := f.store.Attempts()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, string(StateRestoredFromSafety), attempts[0].State)
}

func TestRollbackToStableWithoutStableVersion(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "1.0.0", 40)

	_, err := f.ctrl.RollbackToStable(context.Background())
	assert.ErrorIs(t, err, ErrNoRollbackTarget)
	assert.ErrorIs(t, err, store.ErrNoStableVersion)
}

func TestEmergencyRollbackPrefersStable(t *testing.T) {
	f := newFixture(t, nil)
	f.project.CreateFile("README.md", "# Stable\n")
	f.create(t, "1.0.0", 95)
	f.project.CreateFile("README.md", "# Unstable one\n")
	f.create(t, "1.1.0", 40)
	f.project.CreateFile("README.md", "# Unstable two\n")
	f.create(t, "1.2.0", 40)

	res, err := f.ctrl.EmergencyRollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Target)
	assert.Equal(t, ReasonEmergency, res.Reason)
	assert.Equal(t, "# Stable\n", f.project.ReadFile("README.md"))
}

func TestEmergencyRollbackFallsBackToPrevious(t *testing.T) {
	f := newFixture(t, nil)
	f.project.CreateFile("README.md", "# First\n")
	f.create(t, "1.0.0", 40)
	f.project.CreateFile("README.md", "# Second\n")
	f.create(t, "1.1.0", 50)

	res, err := f.ctrl.EmergencyRollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Target)
	assert.Equal(t, "# First\n", f.project.ReadFile("README.md"))
}

func TestEmergencyRollbackNeedsTwoVersions(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "1.0.0", 40)

	_, err := f.ctrl.EmergencyRollback(context.Background())
	assert.ErrorIs(t, err, ErrNoRollbackTarget)
	assert.True(t, strings.Contains(err.Error(), "fewer than two versions"))
}

func TestRollbackIgnoresCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "1.0.0", 95)
	f.project.CreateFile("draft.txt", "unsaved")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.ctrl.RollbackTo(ctx, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.False(t, f.project.Exists("draft.txt"))
}
