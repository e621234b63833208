package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneKeep   int
	pruneDryRun bool
	pruneForce  bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old snapshots based on retention policy",
	Long: `Remove the oldest version snapshots until at most --keep remain.

The retention count is configured in .rollguard/config.toml:
  [backup]
  keep = 10

Safety backups taken by rollbacks are never pruned. Versions whose
snapshot was pruned stay in the history but can no longer be rolled back to.

Example:
  rollguard prune              # Show what would be pruned
  rollguard prune --force      # Actually prune snapshots`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "Snapshots to keep (default from backup.keep)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", true, "Show what would be pruned without deleting")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "Actually delete snapshots (overrides dry-run)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	keep := pruneKeep
	if keep <= 0 {
		keep = a.settings.Backup.Keep
	}

	entries, err := a.engine.List()
	if err != nil {
		return err
	}

	fmt.Printf("Retention policy: keep %d snapshot(s)\n", keep)
	fmt.Printf("Snapshot directory: %s\n\n", a.engine.Dir())

	if len(entries) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	excess := len(entries) - keep
	if excess <= 0 {
		fmt.Println("No snapshots to prune")
		return nil
	}

	fmt.Printf("Snapshots to prune (%d):\n\n", excess)
	for _, e := range entries[:excess] {
		fmt.Printf("  %s\n", e.Name)
		fmt.Printf("    Age: %s\n", formatDuration(time.Since(e.ModTime)))
	}
	fmt.Println()

	if !pruneForce {
		fmt.Println("This is a dry run. Use --force to actually prune snapshots.")
		return nil
	}

	fmt.Println("Pruning snapshots...")
	removed, err := a.engine.PruneOldest(keep)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	for _, path := range removed {
		fmt.Printf("  ✓ Deleted %s\n", path)
	}
	if skipped := excess - len(removed); skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d snapshot(s) could not be pruned (in use or not removable)\n", skipped)
	}
	fmt.Printf("\n✓ Pruned %d snapshot(s)\n", len(removed))

	return nil
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days == 0 {
		return "< 1 day"
	}
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
