package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/pders01/rollguard/internal/config"
	"github.com/pders01/rollguard/internal/logging"
	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/monitor"
)

func newTestSupervisor(t *testing.T, argv ...string) (*supervisor, *monitor.Monitor) {
	t.Helper()
	m := monitor.New(monitor.Config{
		MonitorSettings: config.MonitorSettings{
			Interval:  time.Hour,
			Backoff:   time.Hour,
			Window:    time.Minute,
			Threshold: 100,
			QueueSize: 16,
		},
		Root: t.TempDir(),
	}, nil, monitor.WithLogger(logging.Discard()))
	return &supervisor{argv: argv, dir: t.TempDir(), delay: 10 * time.Millisecond, monitor: m}, m
}

func TestSupervisorCleanExit(t *testing.T) {
	sup, m := newTestSupervisor(t, "sh", "-c", "exit 0")

	if err := sup.run(context.Background()); err != nil {
		t.Fatalf("supervisor failed: %v", err)
	}
	if n := m.Summary().TotalErrors; n != 0 {
		t.Errorf("clean exit recorded %d errors", n)
	}
	if m.PID() == 0 {
		t.Error("monitor was not pointed at the child")
	}
}

func TestSupervisorRecordsCrashesAndRelaunches(t *testing.T) {
	sup, m := newTestSupervisor(t, "sh", "-c", "exit 3")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := sup.run(ctx); err != nil {
		t.Fatalf("supervisor failed: %v", err)
	}

	history := m.History()
	if len(history) < 2 {
		t.Fatalf("expected the command to be relaunched, got %d crash(es)", len(history))
	}
	ev := history[0]
	if ev.Type != models.ErrorTypeSystemCrash || ev.Severity != models.SeverityHigh {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Context["exit_code"] != "3" {
		t.Errorf("exit_code = %q, want 3", ev.Context["exit_code"])
	}
}

func TestSupervisorStartFailure(t *testing.T) {
	sup, _ := newTestSupervisor(t, "/nonexistent/rollguard-test-binary")

	if err := sup.run(context.Background()); err == nil {
		t.Error("expected error for a missing command")
	}
}

func TestSupervisorRestartWithoutProcess(t *testing.T) {
	sup, _ := newTestSupervisor(t, "true")

	if err := sup.restart(); err == nil {
		t.Error("expected error when nothing is supervised")
	}
}
