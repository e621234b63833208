package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/rollback"
)

func resetRollbackFlags() {
	rollbackStable = false
	rollbackEmergency = false
	rollbackYes = false
}

func TestRollbackToVersion(t *testing.T) {
	p := setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	p.CreateFile("app.txt", "v1")
	createTestVersion(t, "1.0.0", 95)
	p.CreateFile("app.txt", "v2")
	p.CreateFile("new.txt", "only in v2")
	createTestVersion(t, "2.0.0", 70)

	rollbackYes = true
	if err := runRollback(nil, []string{"1.0.0"}); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	if got := p.ReadFile("app.txt"); got != "v1" {
		t.Errorf("app.txt = %q, want v1", got)
	}
	if p.Exists("new.txt") {
		t.Error("file created after 1.0.0 survived the rollback")
	}
	if !p.Exists(".rollguard/versions.jsonl") {
		t.Error("state directory was touched by the rollback")
	}

	a, err := newApp()
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	defer a.Close()
	cur, err := a.store.Current()
	if err != nil || cur.ID != "1.0.0" || cur.RollbackCount != 1 {
		t.Errorf("unexpected current version after rollback: %+v, %v", cur, err)
	}
}

func TestRollbackStable(t *testing.T) {
	p := setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	p.CreateFile("app.txt", "stable")
	createTestVersion(t, "1.0.0", 92)
	p.CreateFile("app.txt", "broken")
	createTestVersion(t, "1.1.0", 40)

	rollbackStable = true
	rollbackYes = true
	if err := runRollback(nil, []string{}); err != nil {
		t.Fatalf("rollback --stable failed: %v", err)
	}
	if got := p.ReadFile("app.txt"); got != "stable" {
		t.Errorf("app.txt = %q, want stable", got)
	}
}

func TestRollbackEmergencyFallsBackToPrevious(t *testing.T) {
	p := setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	p.CreateFile("app.txt", "first")
	createTestVersion(t, "0.1.0", 50)
	p.CreateFile("app.txt", "second")
	createTestVersion(t, "0.2.0", 50)

	rollbackEmergency = true
	rollbackYes = true
	if err := runRollback(nil, []string{}); err != nil {
		t.Fatalf("rollback --emergency failed: %v", err)
	}
	if got := p.ReadFile("app.txt"); got != "first" {
		t.Errorf("app.txt = %q, want first", got)
	}
}

func TestRollbackTargetSelection(t *testing.T) {
	setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	rollbackYes = true
	if err := runRollback(nil, []string{}); err == nil {
		t.Error("expected error without a target")
	}

	rollbackStable = true
	if err := runRollback(nil, []string{"1.0.0"}); err == nil {
		t.Error("expected error with two targets")
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	rollbackYes = true
	err := runRollback(nil, []string{"9.9.9"})
	if !errors.Is(err, rollback.ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestRollbackDeclined(t *testing.T) {
	p := setupProject(t)
	resetRollbackFlags()
	defer resetRollbackFlags()

	p.CreateFile("app.txt", "v1")
	createTestVersion(t, "1.0.0", 95)
	p.CreateFile("app.txt", "v2")

	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("n\n"))
	if err := runRollback(cmd, []string{"1.0.0"}); err != nil {
		t.Fatalf("declined rollback returned error: %v", err)
	}
	if got := p.ReadFile("app.txt"); got != "v2" {
		t.Errorf("tree changed after declining: app.txt = %q", got)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := confirm(strings.NewReader(tt.input)); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
