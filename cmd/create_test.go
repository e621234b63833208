package cmd

import (
	"strings"
	"testing"
)

// createTestVersion records a version through the create command
func createTestVersion(t *testing.T, id string, score float64) {
	t.Helper()

	createDesc = "Release " + id
	createNotes = []string{"change in " + id}
	createScore = score
	createNoBackup = false

	if err := runCreate(nil, []string{id}); err != nil {
		t.Fatalf("failed to create version %s: %v", id, err)
	}
}

func TestCreateCommand(t *testing.T) {
	setupProject(t)

	createTestVersion(t, "1.0.0", 95)

	a, err := newApp()
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	defer a.Close()

	v, err := a.store.Get("1.0.0")
	if err != nil {
		t.Fatalf("version not recorded: %v", err)
	}
	if !v.IsStable {
		t.Error("expected score 95 to be stable")
	}
	if !v.HasBackup() {
		t.Error("expected a usable snapshot")
	}
	if v.Description != "Release 1.0.0" {
		t.Errorf("unexpected description: %q", v.Description)
	}
}

func TestCreateNoBackup(t *testing.T) {
	setupProject(t)

	createDesc = "no snapshot"
	createNotes = nil
	createScore = 50
	createNoBackup = true
	defer func() { createNoBackup = false }()

	if err := runCreate(nil, []string{"0.1.0"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	a, err := newApp()
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	defer a.Close()

	v, err := a.store.Get("0.1.0")
	if err != nil {
		t.Fatalf("version not recorded: %v", err)
	}
	if v.HasBackup() || v.IsStable {
		t.Errorf("expected unstable version without snapshot, got %+v", v)
	}
}

func TestCreateValidation(t *testing.T) {
	setupProject(t)

	tests := []struct {
		name    string
		id      string
		desc    string
		score   float64
		wantErr string
	}{
		{"missing description", "1.0.0", "  ", 90, "description is required"},
		{"blank version", " ", "desc", 90, "version is required"},
		{"score too high", "1.0.0", "desc", 101, "failed to create version"},
		{"score negative", "1.0.0", "desc", -1, "failed to create version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			createDesc = tt.desc
			createScore = tt.score
			err := runCreate(nil, []string{tt.id})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	setupProject(t)

	createTestVersion(t, "1.0.0", 90)

	createDesc = "again"
	if err := runCreate(nil, []string{"1.0.0"}); err == nil {
		t.Error("expected error for duplicate version")
	}
}
