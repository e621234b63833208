package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/models"
)

var (
	listStable bool
	listSince  string
	listJSON   bool
	listToon   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded versions",
	Long: `List recorded versions, newest first, with optional filtering.

Examples:
  rollguard list
  rollguard list --stable
  rollguard list --since 2025-10-01
  rollguard list --json`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listStable, "stable", false, "Show only stable versions")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show versions since date (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listToon, "toon", false, "Output in LLM-friendly toon format")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.store.History()
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	var since time.Time
	if listSince != "" {
		since, err = time.ParseInLocation("2006-01-02", listSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since date format (use YYYY-MM-DD): %w", err)
		}
	}

	current := ""
	if v, err := a.store.Current(); err == nil {
		current = v.ID
	}

	// newest first
	versions := make([]models.Version, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		v := history[i]
		if listStable && !v.IsStable {
			continue
		}
		if !since.IsZero() && v.CreatedAt.Before(since) {
			continue
		}
		versions = append(versions, v)
	}

	if done, err := emit(versions, listJSON, listToon); done {
		return err
	}

	if len(history) == 0 {
		fmt.Println("No versions found")
		return nil
	}
	if len(versions) == 0 {
		fmt.Println("No versions match the filter criteria")
		return nil
	}

	fmt.Printf("Found %d version(s):\n\n", len(versions))
	for _, v := range versions {
		marker := " "
		if v.ID == current {
			marker = "*"
		}
		status := "testing"
		if v.IsStable {
			status = "stable"
		}
		fmt.Printf("%s %s\n", marker, v.ID)
		fmt.Printf("    Created:   %s by %s @ %s\n", v.CreatedAt.Format("2006-01-02 15:04"), v.Author, v.CommitRef)
		fmt.Printf("    Stability: %.1f (%s)\n", v.StabilityScore, status)
		if v.RollbackCount > 0 {
			fmt.Printf("    Rollbacks: %d\n", v.RollbackCount)
		}
		if !v.HasBackup() {
			fmt.Printf("    Snapshot:  none\n")
		}
		if v.Description != "" {
			desc := strings.SplitN(v.Description, "\n", 2)[0]
			if len(desc) > 60 {
				desc = desc[:60] + "..."
			}
			fmt.Printf("    Notes:     %s\n", desc)
		}
		fmt.Println()
	}

	return nil
}
