package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/monitor"
)

var (
	errorsLimit    int
	errorsType     string
	errorsSeverity string
	errorsClear    bool
	errorsJSON     bool
	errorsToon     bool
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show errors recorded by the monitor",
	Long: `Show the error events recorded by "rollguard watch", newest first,
followed by a summary per error type.

Examples:
  rollguard errors
  rollguard errors --severity high --limit 5
  rollguard errors --type system_crash --json
  rollguard errors --clear`,
	RunE: runErrors,
}

func init() {
	rootCmd.AddCommand(errorsCmd)

	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "l", 20, "Maximum number of events to show (0 for all)")
	errorsCmd.Flags().StringVarP(&errorsType, "type", "t", "", "Show only events of this type")
	errorsCmd.Flags().StringVarP(&errorsSeverity, "severity", "s", "", "Minimum severity: low|medium|high|critical")
	errorsCmd.Flags().BoolVar(&errorsClear, "clear", false, "Clear the recorded error history")
	errorsCmd.Flags().BoolVar(&errorsJSON, "json", false, "Output as JSON")
	errorsCmd.Flags().BoolVar(&errorsToon, "toon", false, "Output in LLM-friendly toon format")
}

type errorsReport struct {
	Summary models.MonitorSummary `json:"summary"`
	Events  []models.ErrorEvent   `json:"events"`
}

func runErrors(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	log := monitor.NewEventLog(settings.EventLogPath())

	if errorsClear {
		if err := log.Clear(); err != nil {
			return fmt.Errorf("failed to clear error history: %w", err)
		}
		fmt.Println("✓ Error history cleared")
		return nil
	}

	var minSeverity models.Severity
	if errorsSeverity != "" {
		minSeverity, err = models.ParseSeverity(errorsSeverity)
		if err != nil {
			return err
		}
	}

	events, err := monitor.ReadEventLog(log.Path())
	if err != nil {
		return err
	}

	var filtered []models.ErrorEvent
	for _, ev := range events {
		if errorsType != "" && ev.Type != errorsType {
			continue
		}
		if minSeverity != "" && !ev.Severity.AtLeast(minSeverity) {
			continue
		}
		filtered = append(filtered, ev)
	}

	// newest first
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})
	summary := monitor.Summarize(filtered, time.Now())
	if errorsLimit > 0 && len(filtered) > errorsLimit {
		filtered = filtered[:errorsLimit]
	}

	if done, err := emit(errorsReport{Summary: summary, Events: filtered}, errorsJSON, errorsToon); done {
		return err
	}

	if summary.TotalErrors == 0 {
		fmt.Println("No errors recorded")
		return nil
	}

	fmt.Printf("Showing %d of %d error(s):\n\n", len(filtered), summary.TotalErrors)
	for _, ev := range filtered {
		fmt.Printf("  [%s] %s  %s\n", ev.Severity, ev.Type, humanize.Time(ev.Timestamp))
		fmt.Printf("    %s\n", ev.Message)
		for _, k := range sortedKeys(ev.Context) {
			fmt.Printf("    %s: %s\n", k, ev.Context[k])
		}
	}

	fmt.Println()
	fmt.Println("By type:")
	for _, t := range sortedKeys(summary.CountsByType) {
		fmt.Printf("  %-24s %d\n", t, summary.CountsByType[t])
	}
	fmt.Printf("\nLast hour: %d\n", summary.RecentErrorsInLastHour)

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
