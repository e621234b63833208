package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/backup"
)

var (
	diffFiles bool
	diffJSON  bool
	diffToon  bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <version1> <version2>",
	Short: "Compare two versions",
	Long: `Compare two versions and show differences in:
  - Stability score and status
  - Timestamps, authors and commits
  - Files in their snapshots (with --files)

Example:
  rollguard diff 1.0.0 1.1.0 --files`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().BoolVar(&diffFiles, "files", false, "Compare snapshot contents file by file")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Output as JSON")
	diffCmd.Flags().BoolVar(&diffToon, "toon", false, "Output in LLM-friendly toon format")
}

type versionDiff struct {
	Version1       versionSummary   `json:"version1"`
	Version2       versionSummary   `json:"version2"`
	TimeDifference string           `json:"time_difference"`
	ScoreDelta     float64          `json:"score_delta"`
	StableChanged  bool             `json:"stable_changed"`
	CommitChanged  bool             `json:"commit_changed"`
	NotesAdded     []string         `json:"notes_added,omitempty"`
	Files          *backup.TreeDiff `json:"files,omitempty"`
}

type versionSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Author         string    `json:"author"`
	Commit         string    `json:"commit"`
	StabilityScore float64   `json:"stability_score"`
	IsStable       bool      `json:"is_stable"`
	Description    string    `json:"description"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v1, err := a.store.Get(args[0])
	if err != nil {
		return fmt.Errorf("version %s: %w", args[0], err)
	}
	v2, err := a.store.Get(args[1])
	if err != nil {
		return fmt.Errorf("version %s: %w", args[1], err)
	}

	diff := &versionDiff{
		Version1: versionSummary{
			ID: v1.ID, CreatedAt: v1.CreatedAt, Author: v1.Author, Commit: v1.CommitRef,
			StabilityScore: v1.StabilityScore, IsStable: v1.IsStable, Description: v1.Description,
		},
		Version2: versionSummary{
			ID: v2.ID, CreatedAt: v2.CreatedAt, Author: v2.Author, Commit: v2.CommitRef,
			StabilityScore: v2.StabilityScore, IsStable: v2.IsStable, Description: v2.Description,
		},
		ScoreDelta:    v2.StabilityScore - v1.StabilityScore,
		StableChanged: v1.IsStable != v2.IsStable,
		CommitChanged: v1.CommitRef != v2.CommitRef,
	}

	timeDiff := v2.CreatedAt.Sub(v1.CreatedAt)
	if timeDiff < 0 {
		diff.TimeDifference = fmt.Sprintf("%s (version2 is older)", formatDuration(-timeDiff))
	} else {
		diff.TimeDifference = fmt.Sprintf("%s (version2 is newer)", formatDuration(timeDiff))
	}

	seen := make(map[string]bool)
	for _, note := range v1.ChangeNotes {
		seen[note] = true
	}
	for _, note := range v2.ChangeNotes {
		if !seen[note] {
			diff.NotesAdded = append(diff.NotesAdded, note)
		}
	}

	if diffFiles {
		if !v1.HasBackup() || !v2.HasBackup() {
			return fmt.Errorf("both versions need a usable snapshot to compare files")
		}
		diff.Files, err = a.engine.Compare(context.Background(), v1.BackupRef, v2.BackupRef)
		if err != nil {
			return fmt.Errorf("failed to compare snapshots: %w", err)
		}
	}

	if done, err := emit(diff, diffJSON, diffToon); done {
		return err
	}

	fmt.Println("Version Comparison")
	fmt.Println("━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Version 1: %s (%s)\n", diff.Version1.ID, diff.Version1.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("Version 2: %s (%s)\n", diff.Version2.ID, diff.Version2.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Println()

	fmt.Printf("Time Difference: %s\n", diff.TimeDifference)
	fmt.Printf("Stability: %.1f → %.1f (%+.1f)\n", v1.StabilityScore, v2.StabilityScore, diff.ScoreDelta)
	if diff.StableChanged {
		fmt.Printf("Stable: %t → %t\n", v1.IsStable, v2.IsStable)
	}
	if diff.CommitChanged {
		fmt.Printf("Commit: %s → %s\n", shortRef(v1.CommitRef), shortRef(v2.CommitRef))
	} else {
		fmt.Printf("Commit: %s (unchanged)\n", shortRef(v1.CommitRef))
	}
	fmt.Println()

	if len(diff.NotesAdded) > 0 {
		fmt.Println("Notes added:")
		for _, note := range diff.NotesAdded {
			fmt.Printf("  + %s\n", truncate(note, 100))
		}
		fmt.Println()
	}

	if diff.Files != nil {
		if diff.Files.Empty() {
			fmt.Printf("Files: identical (%d)\n", diff.Files.Same)
			return nil
		}
		fmt.Printf("Files: %d added, %d removed, %d modified, %d unchanged\n",
			len(diff.Files.Added), len(diff.Files.Removed), len(diff.Files.Modified), diff.Files.Same)
		for _, f := range diff.Files.Added {
			fmt.Printf("  A %s\n", f)
		}
		for _, f := range diff.Files.Removed {
			fmt.Printf("  D %s\n", f)
		}
		for _, f := range diff.Files.Modified {
			fmt.Printf("  M %s\n", f)
		}
	}

	return nil
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
