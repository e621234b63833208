package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Document renders settings as the nested table written to config.toml.
// Durations are written as strings such as "10s".
func Document(s *Settings) map[string]any {
	return map[string]any{
		"version": map[string]any{
			"stability_threshold": s.Version.StabilityThreshold,
			"auto_backup":         s.Version.AutoBackup,
		},
		"backup": map[string]any{
			"dir":            s.Backup.Dir,
			"keep":           s.Backup.Keep,
			"min_free_bytes": int64(s.Backup.MinFreeBytes),
			"min_size_bytes": s.Backup.MinSizeBytes,
			"deny":           s.Backup.Deny,
			"required_files": s.Backup.RequiredFiles,
			"critical_files": s.Backup.CriticalFiles,
		},
		"monitor": map[string]any{
			"interval":       s.Monitor.Interval.String(),
			"backoff":        s.Monitor.Backoff.String(),
			"window":         s.Monitor.Window.String(),
			"threshold":      s.Monitor.Threshold,
			"auto_rollback":  s.Monitor.AutoRollback,
			"restart":        s.Monitor.Restart,
			"cpu_percent":    s.Monitor.CPUPercent,
			"disk_percent":   s.Monitor.DiskPercent,
			"memory_bytes":   int64(s.Monitor.MemoryBytes),
			"critical_files": s.Monitor.CriticalFiles,
			"slow_threshold": s.Monitor.SlowThreshold.String(),
			"queue_size":     s.Monitor.QueueSize,
			"watch_files":    s.Monitor.WatchFiles,
		},
		"logging": map[string]any{
			"level": s.Logging.Level,
			"dir":   s.Logging.Dir,
			"json":  s.Logging.JSON,
		},
		"ai": map[string]any{
			"enabled":    s.AI.Enabled,
			"ollama_url": s.AI.OllamaURL,
			"model":      s.AI.Model,
		},
	}
}

// ReadDocument decodes a config file into a nested table. A missing file
// yields an empty table.
func ReadDocument(path string) (map[string]any, error) {
	doc := make(map[string]any)
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return doc, nil
}

// WriteDocument encodes doc into path, replacing it atomically
func WriteDocument(path string, doc map[string]any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetKey stores value under a dotted key such as "monitor.threshold". The
// value is parsed as the type of the key's default, with lists given as
// comma-separated values. The resulting document must still produce valid
// settings.
func SetKey(doc map[string]any, key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid key %q (use section.name, e.g. monitor.threshold)", key)
	}

	defaults := viper.New()
	SetDefaults(defaults)
	if !defaults.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	section, ok := doc[parts[0]].(map[string]any)
	if !ok {
		section = make(map[string]any)
		doc[parts[0]] = section
	}
	parsed, err := parseValue(value, defaults.Get(key))
	if err != nil {
		return err
	}
	section[parts[1]] = parsed

	check := viper.New()
	SetDefaults(check)
	if err := check.MergeConfigMap(doc); err != nil {
		return err
	}
	_, err = Load(check)
	return err
}

// parseValue converts value to the type of the key's default
func parseValue(value string, current any) (any, error) {
	switch current.(type) {
	case []string:
		out := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	case time.Duration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		return value, nil
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", value)
		}
		return b, nil
	case int, int64, uint64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", value)
		}
		return i, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", value)
		}
		return f, nil
	default:
		return value, nil
	}
}
