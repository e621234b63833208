package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/config"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Show the effective configuration or change a key in the project's
.rollguard/config.toml.

Examples:
  rollguard config show
  rollguard config set monitor.threshold 5
  rollguard config set backup.required_files README.md,go.mod`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key in the project config file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configShowCmd.Flags().BoolVar(&configJSON, "json", false, "Output as JSON")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	doc := config.Document(settings)
	if done, err := emit(doc, configJSON, false); done {
		return err
	}

	fmt.Printf("# root = %s\n", settings.Root)
	return toml.NewEncoder(os.Stdout).Encode(doc)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	path := settings.ConfigPath()
	doc, err := config.ReadDocument(path)
	if err != nil {
		return err
	}
	if err := config.SetKey(doc, args[0], args[1]); err != nil {
		return err
	}

	if err := os.MkdirAll(settings.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := config.WriteDocument(path, doc); err != nil {
		return err
	}

	fmt.Printf("✓ Set %s = %s in %s\n", args[0], args[1], path)
	return nil
}
