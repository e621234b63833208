package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pders01/rollguard/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	rootDir  string
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "rollguard",
	Short: "Versioned snapshots, safe rollbacks and error-driven recovery for a project tree",
	Long: `rollguard keeps a ledger of release versions for a project tree:
  - every version gets a verified snapshot of the tree
  - versions scoring above the stability threshold are marked stable
  - rollbacks restore a snapshot behind a safety backup
  - an error monitor escalates to an emergency rollback when errors pile up

State lives in .rollguard/ inside the project root; snapshots in backups/.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.rollguard/config.toml, then $HOME/.config/rollguard/config.toml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (default is the current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output on stderr")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
		viper.AddConfigPath(filepath.Join(projectDir(), config.StateDirName))
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "rollguard"))
		}
	}

	viper.SetEnvPrefix("ROLLGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config %s: %v\n", cfgFile, err)
	}
}

// projectDir returns the directory named by --root, or the working directory
func projectDir() string {
	if rootDir != "" {
		return rootDir
	}
	if v := viper.GetString("root"); v != "" && v != "." {
		return v
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
