package cmd

import (
	"testing"
)

func resetListFlags() {
	listStable = false
	listSince = ""
	listJSON = false
	listToon = false
}

func TestListNoVersions(t *testing.T) {
	setupProject(t)
	resetListFlags()

	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list command failed: %v", err)
	}
}

func TestListWithVersions(t *testing.T) {
	setupProject(t)
	resetListFlags()

	createTestVersion(t, "1.0.0", 95)
	createTestVersion(t, "1.1.0", 60)

	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list command failed: %v", err)
	}

	listStable = true
	defer resetListFlags()
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list --stable failed: %v", err)
	}

	listStable = false
	listJSON = true
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list --json failed: %v", err)
	}

	listJSON = false
	listToon = true
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list --toon failed: %v", err)
	}
}

func TestListSince(t *testing.T) {
	setupProject(t)
	resetListFlags()
	defer resetListFlags()

	createTestVersion(t, "1.0.0", 90)

	listSince = "2025-01-01"
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list command failed: %v", err)
	}
}

func TestListInvalidSinceDate(t *testing.T) {
	setupProject(t)
	resetListFlags()
	defer resetListFlags()

	listSince = "invalid-date"
	if err := runList(nil, []string{}); err == nil {
		t.Error("expected error with invalid date format")
	}
}
