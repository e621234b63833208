package cmd

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pders01/rollguard/internal/models"
)

func TestStatusCommand(t *testing.T) {
	p := setupProject(t)
	statusJSON, statusToon = false, false

	if err := runStatus(nil, []string{}); err != nil {
		t.Fatalf("status with no versions failed: %v", err)
	}

	createTestVersion(t, "1.0.0", 95)
	writeTestEvents(t, p.Root)

	if err := runStatus(nil, []string{}); err != nil {
		t.Fatalf("status command failed: %v", err)
	}
	statusJSON = true
	defer func() { statusJSON = false }()
	if err := runStatus(nil, []string{}); err != nil {
		t.Fatalf("status --json failed: %v", err)
	}
}

func TestShowCommand(t *testing.T) {
	setupProject(t)
	showJSON, showToon = false, false

	if err := runShow(nil, []string{}); err == nil {
		t.Error("expected error without a current version")
	}

	createTestVersion(t, "1.0.0", 95)
	if err := runShow(nil, []string{}); err != nil {
		t.Fatalf("show current failed: %v", err)
	}
	if err := runShow(nil, []string{"1.0.0"}); err != nil {
		t.Fatalf("show 1.0.0 failed: %v", err)
	}
	if err := runShow(nil, []string{"2.0.0"}); err == nil {
		t.Error("expected error for unknown version")
	}
}

func TestSearchCommand(t *testing.T) {
	setupProject(t)
	searchStable, searchJSON, searchToon = false, false, false

	createDesc = "Fix OCR crash on empty pages"
	createNotes = []string{"ocr: guard empty input"}
	createScore = 90
	if err := runCreate(nil, []string{"1.0.1"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	createTestVersion(t, "1.1.0", 90)

	if err := runSearch(nil, []string{"ocr crash"}); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if err := runSearch(nil, []string{"   "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestCalculateRelevance(t *testing.T) {
	v := &models.Version{
		ID:          "ocr-fix",
		Description: "Fix OCR crash",
		ChangeNotes: []string{"OCR guard"},
	}

	if got := calculateRelevance([]string{"unrelated"}, v); got != 0 {
		t.Errorf("unrelated query scored %d", got)
	}
	// 3 occurrences (id, description, note) + id bonus + note bonus
	if got := calculateRelevance([]string{"ocr"}, v); got != 3*10+50+30 {
		t.Errorf("ocr scored %d, want %d", got, 3*10+50+30)
	}
}

func TestDiffCommand(t *testing.T) {
	p := setupProject(t)
	diffFiles, diffJSON, diffToon = false, false, false

	p.CreateFile("app.txt", "v1")
	createTestVersion(t, "1.0.0", 95)
	p.CreateFile("app.txt", "v2")
	p.CreateFile("added.txt", "new")
	createTestVersion(t, "1.1.0", 60)

	if err := runDiff(nil, []string{"1.0.0", "1.1.0"}); err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	diffFiles = true
	defer func() { diffFiles = false }()
	if err := runDiff(nil, []string{"1.0.0", "1.1.0"}); err != nil {
		t.Fatalf("diff --files failed: %v", err)
	}
	if err := runDiff(nil, []string{"1.0.0", "9.9.9"}); err == nil {
		t.Error("expected error for unknown version")
	}
}

func TestExportCommand(t *testing.T) {
	setupProject(t)
	createTestVersion(t, "1.0.0", 95)

	exportOutput = filepath.Join(t.TempDir(), "release.tar.gz")
	defer func() { exportOutput = "" }()
	if err := runExport(nil, []string{"1.0.0"}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	f, err := os.Open(exportOutput)
	if err != nil {
		t.Fatalf("archive not created: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("archive is not gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	found := false
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if strings.HasSuffix(hdr.Name, "/README.md") {
			found = true
		}
	}
	if !found {
		t.Error("README.md missing from archive")
	}
}

func TestReportCommand(t *testing.T) {
	setupProject(t)
	resetErrorsFlags()
	resetListFlags()
	createTestVersion(t, "1.0.0", 95)

	if err := runReport(nil, []string{"health"}); err != nil {
		t.Fatalf("health report failed: %v", err)
	}
	if err := runReport(nil, []string{"versions"}); err != nil {
		t.Fatalf("versions report failed: %v", err)
	}
	if err := runReport(nil, []string{"weekly"}); err == nil {
		t.Error("expected error for unknown template")
	}
}
