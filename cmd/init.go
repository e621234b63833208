package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pders01/rollguard/internal/config"
	"github.com/pders01/rollguard/internal/git"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize rollguard in the project root",
	Long: `Create the .rollguard state directory and a default config file.

This command:
  - Creates .rollguard/ for the version ledger, locks and changelog
  - Writes .rollguard/config.toml with every default spelled out
  - Adds .rollguard/, backups/ and logs/ to .gitignore in git repositories

Run this once per project before creating versions.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	stateDir := settings.StateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	fmt.Printf("✓ State directory: %s\n", stateDir)

	configPath := settings.ConfigPath()
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf("Config already exists: %s\n", configPath)
	} else {
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(config.Document(settings)); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("✓ Created default config: %s\n", configPath)
	}

	if git.IsGitRepo(settings.Root) {
		added, err := ensureGitignore(settings.Root, []string{
			config.StateDirName + "/",
			settings.Backup.Dir + "/",
			settings.Logging.Dir + "/",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to update .gitignore: %v\n", err)
		} else if added > 0 {
			fmt.Printf("✓ Added %d pattern(s) to .gitignore\n", added)
		}
	}

	fmt.Println("\n✓ rollguard initialized successfully!")
	fmt.Println("  You can now use: rollguard create <version> --desc \"...\"")

	return nil
}

// ensureGitignore appends the missing patterns to root/.gitignore
func ensureGitignore(root string, patterns []string) (int, error) {
	path := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, p := range patterns {
		if p == "/" || present[p] {
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return 0, err
		}
	}
	for _, p := range missing {
		if _, err := f.WriteString(p + "\n"); err != nil {
			return 0, err
		}
	}
	return len(missing), nil
}
