package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/models"
)

var (
	searchStable bool
	searchJSON   bool
	searchToon   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search versions by description and change notes",
	Long: `Search through version ids, descriptions and change notes.

Results are ranked by keyword relevance; id matches rank highest.

Example:
  rollguard search "ocr crash"
  rollguard search --stable hotfix`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolVar(&searchStable, "stable", false, "Search only stable versions")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	searchCmd.Flags().BoolVar(&searchToon, "toon", false, "Output in LLM-friendly toon format")
}

type searchResult struct {
	Version models.Version `json:"version"`
	Score   int            `json:"score"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	queryWords := strings.Fields(strings.ToLower(args[0]))
	if len(queryWords) == 0 {
		return fmt.Errorf("query is empty")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.store.History()
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	results := []searchResult{}
	for _, v := range history {
		if searchStable && !v.IsStable {
			continue
		}
		if score := calculateRelevance(queryWords, &v); score > 0 {
			results = append(results, searchResult{Version: v, Score: score})
		}
	}

	// Highest score first, newest first on ties
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Version.CreatedAt.After(results[j].Version.CreatedAt)
	})

	if done, err := emit(results, searchJSON, searchToon); done {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No versions match the search query")
		return nil
	}

	fmt.Printf("Found %d matching version(s):\n\n", len(results))
	for i, r := range results {
		v := r.Version
		fmt.Printf("%d. %s [score: %d]\n", i+1, v.ID, r.Score)
		fmt.Printf("   Created:   %s\n", v.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Printf("   Stability: %.1f (stable: %t)\n", v.StabilityScore, v.IsStable)
		fmt.Printf("   Notes:     %s\n", truncate(v.Description, 80))
		fmt.Println()
	}

	return nil
}

func calculateRelevance(queryWords []string, v *models.Version) int {
	score := 0
	searchableText := strings.ToLower(v.ID + " " + v.Description + " " + strings.Join(v.ChangeNotes, " "))

	for _, word := range queryWords {
		score += strings.Count(searchableText, word) * 10

		// Bonus points for matches in the version id
		if strings.Contains(strings.ToLower(v.ID), word) {
			score += 50
		}

		// Bonus points for change note matches
		for _, note := range v.ChangeNotes {
			if strings.Contains(strings.ToLower(note), word) {
				score += 30
			}
		}
	}

	return score
}
