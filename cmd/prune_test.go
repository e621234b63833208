package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func countSnapshots(t *testing.T, root string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, "backups"))
	if err != nil {
		t.Fatalf("failed to read backups: %v", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > 7 && e.Name()[:7] == "backup_" {
			n++
		}
	}
	return n
}

func TestPruneDryRun(t *testing.T) {
	p := setupProject(t)

	createTestVersion(t, "1.0.0", 90)
	createTestVersion(t, "1.1.0", 90)
	createTestVersion(t, "1.2.0", 90)

	pruneKeep = 1
	pruneDryRun = true
	pruneForce = false
	defer func() { pruneKeep = 0 }()

	if err := runPrune(nil, []string{}); err != nil {
		t.Fatalf("prune command failed: %v", err)
	}
	if n := countSnapshots(t, p.Root); n != 3 {
		t.Errorf("dry run deleted snapshots: %d left", n)
	}
}

func TestPruneForce(t *testing.T) {
	p := setupProject(t)

	createTestVersion(t, "1.0.0", 90)
	// distinct modification times keep the pruning order deterministic
	old := time.Now().Add(-time.Hour)
	entries, _ := os.ReadDir(filepath.Join(p.Root, "backups"))
	for _, e := range entries {
		os.Chtimes(filepath.Join(p.Root, "backups", e.Name()), old, old)
	}
	createTestVersion(t, "1.1.0", 90)

	pruneKeep = 1
	pruneForce = true
	defer func() {
		pruneKeep = 0
		pruneForce = false
	}()

	if err := runPrune(nil, []string{}); err != nil {
		t.Fatalf("prune command failed: %v", err)
	}
	if n := countSnapshots(t, p.Root); n != 1 {
		t.Fatalf("expected 1 snapshot after prune, got %d", n)
	}

	a, err := newApp()
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	defer a.Close()
	if v, _ := a.store.Get("1.1.0"); v == nil || !a.engine.Exists(v.BackupRef) {
		t.Error("newest snapshot was pruned")
	}
}

func TestPruneNoSnapshots(t *testing.T) {
	setupProject(t)
	pruneForce = true
	defer func() { pruneForce = false }()

	if err := runPrune(nil, []string{}); err != nil {
		t.Fatalf("prune command failed: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Hour, "< 1 day"},
		{25 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
