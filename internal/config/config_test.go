package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, root string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("root", root)
	return v
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	s, err := Load(newViper(t, root))
	require.NoError(t, err)

	assert.Equal(t, root, s.Root)
	assert.Equal(t, 80.0, s.Version.StabilityThreshold)
	assert.True(t, s.Version.AutoBackup)
	assert.Equal(t, 10, s.Backup.Keep)
	assert.Equal(t, uint64(1<<30), s.Backup.MinFreeBytes)
	assert.Equal(t, 10*time.Second, s.Monitor.Interval)
	assert.Equal(t, 30*time.Second, s.Monitor.Backoff)
	assert.Equal(t, 300*time.Second, s.Monitor.Window)
	assert.Equal(t, 3, s.Monitor.Threshold)
	assert.Equal(t, filepath.Join(root, ".rollguard"), s.StateDir())
	assert.Equal(t, filepath.Join(root, "backups"), s.BackupDir())
	assert.Equal(t, filepath.Join(root, "logs"), s.LogDir())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"threshold above range", "version.stability_threshold", 120.0},
		{"zero error threshold", "monitor.threshold", 0},
		{"zero keep", "backup.keep", 0},
		{"unknown log level", "logging.level", "chatty"},
		{"bad ollama url", "ai.ollama_url", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t, t.TempDir())
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestDenyList(t *testing.T) {
	root := t.TempDir()

	s, err := Load(newViper(t, root))
	require.NoError(t, err)
	deny := s.DenyList()
	assert.Contains(t, deny, ".rollguard")
	assert.Contains(t, deny, "backups")
	assert.Contains(t, deny, "logs")

	v := newViper(t, root)
	v.Set("backup.dir", filepath.Join(t.TempDir(), "elsewhere"))
	v.Set("logging.dir", "var/log/app")
	s, err = Load(v)
	require.NoError(t, err)
	deny = s.DenyList()
	assert.NotContains(t, deny, "elsewhere")
	assert.Contains(t, deny, "var")
}

func TestDocumentRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := Load(newViper(t, root))
	require.NoError(t, err)

	path := filepath.Join(root, "config.toml")
	require.NoError(t, WriteDocument(path, Document(s)))

	doc, err := ReadDocument(path)
	require.NoError(t, err)

	v := viper.New()
	SetDefaults(v)
	v.Set("root", root)
	require.NoError(t, v.MergeConfigMap(doc))
	reloaded, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, s, reloaded)
}

func TestReadDocumentMissingFile(t *testing.T) {
	doc, err := ReadDocument(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestSetKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"integer", "monitor.threshold", "5", int64(5), false},
		{"float", "version.stability_threshold", "72.5", 72.5, false},
		{"bool", "monitor.auto_rollback", "false", false, false},
		{"duration", "monitor.window", "10m", "10m", false},
		{"list", "backup.required_files", "README.md, go.mod", []string{"README.md", "go.mod"}, false},
		{"unknown key", "monitor.nope", "1", nil, true},
		{"malformed key", "threshold", "1", nil, true},
		{"not an integer", "monitor.threshold", "three", nil, true},
		{"bad duration", "monitor.window", "soon", nil, true},
		{"fails validation", "monitor.threshold", "0", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := map[string]any{}
			err := SetKey(doc, tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			name, field, _ := strings.Cut(tt.key, ".")
			section := doc[name].(map[string]any)
			assert.Equal(t, tt.want, section[field])
		})
	}
}
