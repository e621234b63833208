package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// StateDirName is the per-project directory holding the ledger and locks
const StateDirName = ".rollguard"

// DefaultDeny lists tree entries never copied into, restored over, or deleted
// from the project tree. The backup and log directories are added at runtime.
var DefaultDeny = []string{
	StateDirName,
	".git",
	"__pycache__",
	"node_modules",
	"venv",
	".venv",
	"env",
	".vscode",
	".idea",
	".cache",
	"*.pyc",
	"*.tmp",
	"*.log",
	"*.bak",
}

// Settings is the validated view of the configuration
type Settings struct {
	Root    string          `mapstructure:"root" validate:"required"`
	Version VersionSettings `mapstructure:"version"`
	Backup  BackupSettings  `mapstructure:"backup"`
	Monitor MonitorSettings `mapstructure:"monitor"`
	Logging LoggingSettings `mapstructure:"logging"`
	AI      AISettings      `mapstructure:"ai"`
}

type VersionSettings struct {
	StabilityThreshold float64 `mapstructure:"stability_threshold" validate:"gte=0,lte=100"`
	AutoBackup         bool    `mapstructure:"auto_backup"`
}

type BackupSettings struct {
	Dir           string   `mapstructure:"dir" validate:"required"`
	Keep          int      `mapstructure:"keep" validate:"gte=1"`
	MinFreeBytes  uint64   `mapstructure:"min_free_bytes"`
	MinSizeBytes  int64    `mapstructure:"min_size_bytes" validate:"gte=0"`
	Deny          []string `mapstructure:"deny"`
	RequiredFiles []string `mapstructure:"required_files"`
	CriticalFiles []string `mapstructure:"critical_files"`
}

type MonitorSettings struct {
	Interval      time.Duration `mapstructure:"interval" validate:"gt=0"`
	Backoff       time.Duration `mapstructure:"backoff" validate:"gt=0"`
	Window        time.Duration `mapstructure:"window" validate:"gt=0"`
	Threshold     int           `mapstructure:"threshold" validate:"gte=1"`
	AutoRollback  bool          `mapstructure:"auto_rollback"`
	Restart       bool          `mapstructure:"restart"`
	CPUPercent    float64       `mapstructure:"cpu_percent" validate:"gt=0,lte=100"`
	DiskPercent   float64       `mapstructure:"disk_percent" validate:"gt=0,lte=100"`
	MemoryBytes   uint64        `mapstructure:"memory_bytes" validate:"gt=0"`
	CriticalFiles []string      `mapstructure:"critical_files"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" validate:"gt=0"`
	QueueSize     int           `mapstructure:"queue_size" validate:"gte=1"`
	WatchFiles    bool          `mapstructure:"watch_files"`
}

type LoggingSettings struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Dir   string `mapstructure:"dir"`
	JSON  bool   `mapstructure:"json"`
}

type AISettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	OllamaURL string `mapstructure:"ollama_url" validate:"omitempty,url"`
	Model     string `mapstructure:"model"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("version.stability_threshold", 80.0)
	v.SetDefault("version.auto_backup", true)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.keep", 10)
	v.SetDefault("backup.min_free_bytes", uint64(1<<30))
	v.SetDefault("backup.min_size_bytes", int64(1<<20))
	v.SetDefault("backup.deny", DefaultDeny)
	v.SetDefault("backup.required_files", []string{"README.md"})
	v.SetDefault("backup.critical_files", []string{"README.md", "go.mod", "go.sum", "main.go", "cmd", "internal", "config"})
	v.SetDefault("monitor.interval", 10*time.Second)
	v.SetDefault("monitor.backoff", 30*time.Second)
	v.SetDefault("monitor.window", 300*time.Second)
	v.SetDefault("monitor.threshold", 3)
	v.SetDefault("monitor.auto_rollback", true)
	v.SetDefault("monitor.restart", true)
	v.SetDefault("monitor.cpu_percent", 90.0)
	v.SetDefault("monitor.disk_percent", 90.0)
	v.SetDefault("monitor.memory_bytes", uint64(1<<30))
	v.SetDefault("monitor.critical_files", []string{"README.md"})
	v.SetDefault("monitor.slow_threshold", 5*time.Minute)
	v.SetDefault("monitor.queue_size", 256)
	v.SetDefault("monitor.watch_files", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.json", false)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.model", "llama3.2")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load decodes and validates the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", s.Root, err)
	}
	s.Root = root
	return &s, nil
}

// StateDir returns the absolute state directory of the project
func (s *Settings) StateDir() string {
	return filepath.Join(s.Root, StateDirName)
}

// EventLogPath returns the JSONL file the monitor records errors to
func (s *Settings) EventLogPath() string {
	return filepath.Join(s.StateDir(), "events.jsonl")
}

// ConfigPath returns the per-project config file
func (s *Settings) ConfigPath() string {
	return filepath.Join(s.StateDir(), "config.toml")
}

// BackupDir returns the absolute snapshot directory
func (s *Settings) BackupDir() string {
	return s.resolve(s.Backup.Dir)
}

// LogDir returns the absolute log directory, or "" when file logging is off
func (s *Settings) LogDir() string {
	if s.Logging.Dir == "" {
		return ""
	}
	return s.resolve(s.Logging.Dir)
}

// DenyList returns the configured deny-list plus the backup and log
// directories when they live inside the project tree
func (s *Settings) DenyList() []string {
	deny := append([]string{}, s.Backup.Deny...)
	for _, dir := range []string{s.BackupDir(), s.LogDir()} {
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(s.Root, dir)
		if err != nil || rel == "." || filepath.IsAbs(rel) || rel == ".." || len(rel) > 2 && rel[:3] == "../" {
			continue
		}
		deny = append(deny, topLevel(rel))
	}
	return deny
}

func (s *Settings) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, p)
}

func topLevel(rel string) string {
	for i, r := range rel {
		if r == filepath.Separator {
			return rel[:i]
		}
	}
	return rel
}
