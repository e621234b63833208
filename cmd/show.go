package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	showJSON bool
	showToon bool
)

var showCmd = &cobra.Command{
	Use:   "show [version]",
	Short: "Show details of a version",
	Long: `Show the full record of one version. Without an argument the current
version is shown.

Examples:
  rollguard show
  rollguard show 1.0.0 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	showCmd.Flags().BoolVar(&showToon, "toon", false, "Output in LLM-friendly toon format")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.store.Current()
	if len(args) == 1 {
		v, err = a.store.Get(args[0])
	}
	if err != nil {
		return err
	}

	if done, err := emit(v, showJSON, showToon); done {
		return err
	}

	score, err := a.store.CheckStability(v.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Version:     %s\n", v.ID)
	fmt.Printf("Created:     %s (%s)\n", v.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(v.CreatedAt))
	fmt.Printf("Author:      %s\n", v.Author)
	fmt.Printf("Commit:      %s\n", v.CommitRef)
	fmt.Printf("Stability:   %.1f (stable: %t)\n", v.StabilityScore, v.IsStable)
	fmt.Printf("Rollbacks:   %d (current score %.0f)\n", v.RollbackCount, score)
	if v.HasBackup() {
		fmt.Printf("Snapshot:    %s\n", v.BackupRef.Path)
		fmt.Printf("             %s, taken %s\n", humanize.IBytes(uint64(v.BackupRef.SizeBytes)), v.BackupRef.CreatedAt.Format("2006-01-02 15:04:05"))
	} else if v.BackupRef != nil {
		fmt.Printf("Snapshot:    unusable (%s)\n", v.BackupRef.Status)
	} else {
		fmt.Printf("Snapshot:    none\n")
	}
	fmt.Println()
	fmt.Println(v.Description)
	if len(v.ChangeNotes) > 0 {
		fmt.Println()
		for _, note := range v.ChangeNotes {
			fmt.Printf("  - %s\n", note)
		}
	}

	return nil
}
