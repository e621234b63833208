package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/rollback"
)

var (
	rollbackStable    bool
	rollbackEmergency bool
	rollbackYes       bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [version]",
	Short: "Restore the project tree to a recorded version",
	Long: `Restore the project tree from a version's snapshot.

Before anything is touched, the current tree is copied to a safety backup.
If the restore or its verification fails, the safety backup is put back
and kept in backups/ for inspection.

Exactly one target must be given:
  rollguard rollback 1.0.0        # a specific version
  rollguard rollback --stable     # the best stable version
  rollguard rollback --emergency  # best stable, else the previous version

Everything in the tree that is not in the snapshot is removed, except
.git, the state, backup and log directories and other deny-listed entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)

	rollbackCmd.Flags().BoolVar(&rollbackStable, "stable", false, "Roll back to the best stable version")
	rollbackCmd.Flags().BoolVar(&rollbackEmergency, "emergency", false, "Roll back to stable, falling back to the previous version")
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runRollback(cmd *cobra.Command, args []string) error {
	targets := 0
	if len(args) == 1 {
		targets++
	}
	if rollbackStable {
		targets++
	}
	if rollbackEmergency {
		targets++
	}
	if targets != 1 {
		return fmt.Errorf("specify exactly one of <version>, --stable or --emergency")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target := describeTarget(a, args)

	if !rollbackYes {
		var in io.Reader = os.Stdin
		if cmd != nil {
			in = cmd.InOrStdin()
		}
		fmt.Printf("Roll back %s to %s? Files not in the snapshot will be removed. [y/N] ", a.settings.Root, target)
		if !confirm(in) {
			fmt.Println("Aborted")
			return nil
		}
	}

	ctx := context.Background()
	var res *rollback.Result
	switch {
	case rollbackStable:
		res, err = a.rollback.RollbackToStable(ctx)
	case rollbackEmergency:
		res, err = a.rollback.EmergencyRollback(ctx)
	default:
		res, err = a.rollback.RollbackTo(ctx, args[0])
	}

	if res != nil && res.Report != nil {
		for _, f := range res.Report.Failures {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", f.String())
		}
	}
	if err != nil {
		if errors.Is(err, rollback.ErrRollbackFailed) && res != nil && res.SafetyPath != "" {
			fmt.Fprintf(os.Stderr, "Tree state: %s (safety backup kept at %s)\n", res.State, res.SafetyPath)
		}
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Printf("✓ Rolled back to %s\n", res.Target)
	if res.Report != nil {
		fmt.Printf("  Removed %d item(s), restored %d\n", res.Report.Removed, res.Report.Restored)
	}
	if res.Version != nil {
		fmt.Printf("  Rollback count: %d\n", res.Version.RollbackCount)
	}
	return nil
}

// describeTarget names the rollback target for the confirmation prompt.
// Lookup failures are left to the controller, which records the attempt.
func describeTarget(a *app, args []string) string {
	switch {
	case len(args) == 1:
		return "version " + args[0]
	case rollbackStable:
		if v, err := a.store.BestStable(); err == nil {
			return "stable version " + v.ID
		}
		return "the best stable version"
	default:
		if v, err := a.store.BestStable(); err == nil {
			return "stable version " + v.ID
		}
		if v, err := a.store.Previous(); err == nil {
			return "previous version " + v.ID
		}
		return "the last known good version"
	}
}

func confirm(in io.Reader) bool {
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
