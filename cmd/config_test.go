package cmd

import (
	"strings"
	"testing"

	"github.com/pders01/rollguard/internal/config"
)

func TestConfigSet(t *testing.T) {
	p := setupProject(t)

	if err := runConfigSet(nil, []string{"monitor.threshold", "5"}); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if err := runConfigSet(nil, []string{"backup.required_files", "README.md, go.mod"}); err != nil {
		t.Fatalf("config set list failed: %v", err)
	}

	doc, err := config.ReadDocument(p.Root + "/.rollguard/config.toml")
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	monitorSection, _ := doc["monitor"].(map[string]any)
	if monitorSection["threshold"] != int64(5) {
		t.Errorf("monitor.threshold = %v, want 5", monitorSection["threshold"])
	}
	content := p.ReadFile(".rollguard/config.toml")
	if !strings.Contains(content, `"go.mod"`) {
		t.Errorf("required_files not written: %s", content)
	}
}

func TestConfigSetRejectsInvalid(t *testing.T) {
	p := setupProject(t)

	tests := [][]string{
		{"monitor.threshold", "0"},
		{"monitor.threshold", "many"},
		{"monitor.nope", "1"},
		{"threshold", "1"},
		{"monitor.window", "soon"},
	}
	for _, args := range tests {
		if err := runConfigSet(nil, args); err == nil {
			t.Errorf("config set %v: expected error", args)
		}
	}
	if p.Exists(".rollguard/config.toml") {
		t.Error("invalid values must not create a config file")
	}
}

func TestConfigShow(t *testing.T) {
	setupProject(t)

	configJSON = false
	if err := runConfigShow(nil, []string{}); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	configJSON = true
	defer func() { configJSON = false }()
	if err := runConfigShow(nil, []string{}); err != nil {
		t.Fatalf("config show --json failed: %v", err)
	}
}
