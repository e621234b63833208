package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/config"
	"github.com/pders01/rollguard/internal/logging"
	"github.com/pders01/rollguard/internal/rollback"
	"github.com/pders01/rollguard/internal/store"
)

// app wires the components every command shares
type app struct {
	settings *config.Settings
	logger   *logging.Logger
	engine   *backup.Engine
	store    *store.Store
	rollback *rollback.Controller
}

// loadSettings resolves and validates the effective configuration
func loadSettings() (*config.Settings, error) {
	v := viper.GetViper()
	config.SetDefaults(v)
	if rootDir != "" {
		v.Set("root", rootDir)
	}
	if logLevel != "" {
		v.Set("logging.level", logLevel)
	}
	return config.Load(v)
}

func newApp() (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(settings.Root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", settings.Root)
	}

	logger, err := logging.New(logging.Config{
		Level: settings.Logging.Level,
		Dir:   settings.LogDir(),
		JSON:  settings.Logging.JSON,
		Quiet: quiet,
	})
	if err != nil {
		return nil, err
	}

	policy := backup.Policy{
		Deny:          settings.DenyList(),
		RequiredFiles: settings.Backup.RequiredFiles,
		CriticalFiles: settings.Backup.CriticalFiles,
		MinFreeBytes:  settings.Backup.MinFreeBytes,
		MinSizeBytes:  settings.Backup.MinSizeBytes,
	}
	engine := backup.New(settings.Root, settings.BackupDir(), policy,
		backup.WithLogger(logger.Logger))

	s, err := store.Open(store.Options{
		Root:               settings.Root,
		StateDir:           settings.StateDir(),
		StabilityThreshold: settings.Version.StabilityThreshold,
		AutoBackup:         settings.Version.AutoBackup,
		Keep:               settings.Backup.Keep,
		Snapshotter:        engine,
		Logger:             logger.Logger,
	})
	if err != nil {
		logger.Close()
		return nil, err
	}

	ctrl := rollback.New(s, engine, rollback.WithLogger(logger.Logger))

	return &app{
		settings: settings,
		logger:   logger,
		engine:   engine,
		store:    s,
		rollback: ctrl,
	}, nil
}

func (a *app) Close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
}
