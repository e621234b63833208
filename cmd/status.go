package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/monitor"
	"github.com/pders01/rollguard/internal/ollama"
)

var (
	statusJSON bool
	statusToon bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show version, snapshot and error status",
	Long: `Show the current version, stable versions, snapshot usage and the
error summary recorded by "rollguard watch".

Example:
  rollguard status
  rollguard status --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusToon, "toon", false, "Output in LLM-friendly toon format")
}

// statusReport is the machine-readable form of "rollguard status"
type statusReport struct {
	Project     models.ProjectStatus  `json:"project"`
	Errors      models.MonitorSummary `json:"errors"`
	DiskUsed    float64               `json:"disk_used_percent,omitempty"`
	AIEnabled   bool                  `json:"ai_enabled"`
	AIAvailable bool                  `json:"ai_available,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	project, err := a.store.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	events, err := monitor.ReadEventLog(a.settings.EventLogPath())
	if err != nil {
		return err
	}

	report := statusReport{
		Project:   project,
		Errors:    monitor.Summarize(events, time.Now()),
		AIEnabled: a.settings.AI.Enabled,
	}
	if usage, err := backup.DiskUsage(a.settings.Root); err == nil {
		report.DiskUsed = usage.UsedPercent()
	}
	if report.AIEnabled {
		report.AIAvailable = ollama.IsAvailable(a.settings.AI.OllamaURL)
	}

	if done, err := emit(report, statusJSON, statusToon); done {
		return err
	}

	fmt.Println("Project Status")
	fmt.Println("══════════════")
	fmt.Println()
	fmt.Printf("Root:             %s\n", a.settings.Root)
	if project.CurrentVersion == "" {
		fmt.Printf("Current version:  none\n")
	} else {
		state := "testing"
		if project.CurrentIsStable {
			state = "stable"
		}
		fmt.Printf("Current version:  %s (%s, score %.1f, %d rollback(s))\n",
			project.CurrentVersion, state, project.CurrentStabilityScore, project.CurrentRollbackCount)
	}
	fmt.Printf("Versions:         %d (%d stable, threshold %.1f)\n",
		project.TotalVersions, project.StableVersionsCount, project.StabilityThreshold)
	if !project.LastUpdate.IsZero() {
		fmt.Printf("Last update:      %s (%s)\n", project.LastUpdate.Format("2006-01-02 15:04"), humanize.Time(project.LastUpdate))
	}
	fmt.Printf("Rollback attempts: %d\n", project.RollbackAttempts)
	fmt.Println()

	fmt.Printf("Snapshots:        %d in %s\n", project.SnapshotCount, a.engine.Dir())
	fmt.Printf("Auto backup:      %s\n", enabled(project.AutoBackupEnabled))
	if report.DiskUsed > 0 {
		fmt.Printf("Disk used:        %.1f%%\n", report.DiskUsed)
	}
	fmt.Println()

	fmt.Printf("Errors recorded:  %d (%d in the last hour)\n", report.Errors.TotalErrors, report.Errors.RecentErrorsInLastHour)
	if report.Errors.LastErrorAt != nil {
		fmt.Printf("Last error:       %s\n", humanize.Time(*report.Errors.LastErrorAt))
	}

	if report.AIEnabled {
		fmt.Println()
		if report.AIAvailable {
			fmt.Printf("Ollama:           ✓ available at %s (model %s)\n", a.settings.AI.OllamaURL, a.settings.AI.Model)
		} else {
			fmt.Printf("Ollama:           ✗ not reachable at %s\n", a.settings.AI.OllamaURL)
		}
	}

	return nil
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
