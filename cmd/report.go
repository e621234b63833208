package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <template>",
	Short: "Generate pre-defined reports",
	Long: `Generate formatted reports using pre-defined templates.

Available templates:
  health    - Project status followed by the most recent errors
  versions  - Stable versions followed by the full history

Examples:
  rollguard report health`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	template := args[0]

	switch template {
	case "health":
		return generateHealthReport()
	case "versions":
		return generateVersionsReport()
	default:
		return fmt.Errorf("unknown report template: %s (available: health, versions)", template)
	}
}

func generateHealthReport() error {
	fmt.Println("Health Report")
	fmt.Println("═════════════")
	fmt.Println()

	oldJSON, oldToon := statusJSON, statusToon
	statusJSON, statusToon = false, false
	err := runStatus(&cobra.Command{}, []string{})
	statusJSON, statusToon = oldJSON, oldToon
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Recent Errors")
	fmt.Println("─────────────")

	// Temporarily set errors flags
	oldLimit, oldType, oldSeverity := errorsLimit, errorsType, errorsSeverity
	oldClear, oldErrJSON, oldErrToon := errorsClear, errorsJSON, errorsToon

	errorsLimit, errorsType, errorsSeverity = 10, "", ""
	errorsClear, errorsJSON, errorsToon = false, false, false

	err = runErrors(&cobra.Command{}, []string{})

	// Restore flags
	errorsLimit, errorsType, errorsSeverity = oldLimit, oldType, oldSeverity
	errorsClear, errorsJSON, errorsToon = oldClear, oldErrJSON, oldErrToon

	return err
}

func generateVersionsReport() error {
	fmt.Println("Versions Report")
	fmt.Println("═══════════════")
	fmt.Println()

	oldStable, oldSince, oldJSON, oldToon := listStable, listSince, listJSON, listToon
	defer func() {
		listStable, listSince, listJSON, listToon = oldStable, oldSince, oldJSON, oldToon
	}()
	listSince, listJSON, listToon = "", false, false

	fmt.Println("Stable")
	fmt.Println("──────")
	listStable = true
	if err := runList(&cobra.Command{}, []string{}); err != nil {
		return err
	}

	fmt.Println("History")
	fmt.Println("───────")
	listStable = false
	return runList(&cobra.Command{}, []string{})
}
