package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	createDesc     string
	createNotes    []string
	createScore    float64
	createNoBackup bool
)

var createCmd = &cobra.Command{
	Use:   "create <version>",
	Short: "Record a new version of the project tree",
	Long: `Record a new version and, unless disabled, snapshot the project tree.

A version whose stability score reaches the configured threshold
(version.stability_threshold, default 80) is marked stable and becomes a
rollback target for "rollguard rollback --stable".

Snapshot failures (low disk space, permissions) are reported as warnings;
the version is still recorded, just without a backup.

Examples:
  rollguard create 1.0.0 --desc "First release" --score 95
  rollguard create 1.0.1 --desc "Hotfix" --note "Fix OCR crash" --note "Bump deps"`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createDesc, "desc", "d", "", "Version description")
	createCmd.Flags().StringArrayVarP(&createNotes, "note", "n", []string{}, "Change note (repeatable)")
	createCmd.Flags().Float64Var(&createScore, "score", 90, "Stability score (0-100)")
	createCmd.Flags().BoolVar(&createNoBackup, "no-backup", false, "Skip the snapshot for this version")
}

func runCreate(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(createDesc) == "" {
		return fmt.Errorf("description is required (use --desc)")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if createNoBackup {
		a.store.SetAutoBackup(false)
	}

	fmt.Printf("Creating version: %s\n", id)
	v, err := a.store.CreateVersion(context.Background(), id, createDesc, createNotes, createScore)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}

	status := "testing"
	if v.IsStable {
		status = "stable"
	}
	fmt.Printf("✓ Version %s recorded (%s, score %.1f)\n", v.ID, status, v.StabilityScore)
	fmt.Printf("  Commit: %s  Author: %s\n", v.CommitRef, v.Author)
	if v.HasBackup() {
		fmt.Printf("  Snapshot: %s (%s)\n", v.BackupRef.Path, humanize.IBytes(uint64(v.BackupRef.SizeBytes)))
	} else if !createNoBackup && a.settings.Version.AutoBackup {
		fmt.Println("  Snapshot: none (see warnings above); this version cannot be rolled back to")
	}

	return nil
}
