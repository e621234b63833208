package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/monitor"
)

func resetErrorsFlags() {
	errorsLimit = 20
	errorsType = ""
	errorsSeverity = ""
	errorsClear = false
	errorsJSON = false
	errorsToon = false
}

func writeTestEvents(t *testing.T, root string) {
	t.Helper()
	log := monitor.NewEventLog(filepath.Join(root, ".rollguard", "events.jsonl"))
	if err := os.MkdirAll(filepath.Dir(log.Path()), 0755); err != nil {
		t.Fatalf("failed to create state dir: %v", err)
	}
	now := time.Now()
	events := []models.ErrorEvent{
		{ID: "1", Type: models.ErrorTypeHighCPU, Message: "cpu 97%", Severity: models.SeverityLow, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "2", Type: models.ErrorTypeSystemCrash, Message: "exit 2", Severity: models.SeverityHigh, Timestamp: now.Add(-time.Minute),
			Context: map[string]string{"exit_code": "2"}},
		{ID: "3", Type: models.ErrorTypeAIProcessing, Message: "timeout", Severity: models.SeverityCritical, Timestamp: now},
	}
	for _, ev := range events {
		if err := log.Write(ev); err != nil {
			t.Fatalf("failed to write event: %v", err)
		}
	}
}

func TestErrorsNoEvents(t *testing.T) {
	setupProject(t)
	resetErrorsFlags()

	if err := runErrors(nil, []string{}); err != nil {
		t.Fatalf("errors command failed: %v", err)
	}
}

func TestErrorsFilters(t *testing.T) {
	p := setupProject(t)
	resetErrorsFlags()
	defer resetErrorsFlags()
	writeTestEvents(t, p.Root)

	if err := runErrors(nil, []string{}); err != nil {
		t.Fatalf("errors command failed: %v", err)
	}

	errorsSeverity = "high"
	errorsJSON = true
	if err := runErrors(nil, []string{}); err != nil {
		t.Fatalf("errors --severity failed: %v", err)
	}

	errorsSeverity = "urgent"
	if err := runErrors(nil, []string{}); err == nil {
		t.Error("expected error for invalid severity")
	}

	errorsSeverity = ""
	errorsType = models.ErrorTypeSystemCrash
	errorsJSON = false
	errorsToon = true
	if err := runErrors(nil, []string{}); err != nil {
		t.Fatalf("errors --type failed: %v", err)
	}
}

func TestErrorsClear(t *testing.T) {
	p := setupProject(t)
	resetErrorsFlags()
	defer resetErrorsFlags()
	writeTestEvents(t, p.Root)

	errorsClear = true
	if err := runErrors(nil, []string{}); err != nil {
		t.Fatalf("errors --clear failed: %v", err)
	}

	events, err := monitor.ReadEventLog(filepath.Join(p.Root, ".rollguard", "events.jsonl"))
	if err != nil {
		t.Fatalf("failed to read event log: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty event log, got %d events", len(events))
	}
}
