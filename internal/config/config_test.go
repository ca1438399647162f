package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigSaveLoad(t *testing.T) {
	t.Log("Testing Config Saving and Loading")

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	originalConfig := DefaultConfig()
	originalConfig.MCPConfigPath = "/test/claude_desktop_config.json"
	originalConfig.StateDir = "/test/state"
	originalConfig.BusyPolicy = BusyPolicyReject
	originalConfig.SignSnapshots = true

	if err := originalConfig.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %s", err)
	}

	loadedConfig, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %s", err)
	}

	if loadedConfig.MCPConfigPath != originalConfig.MCPConfigPath {
		t.Errorf("MCPConfigPath mismatch: expected %s, got %s", originalConfig.MCPConfigPath, loadedConfig.MCPConfigPath)
	}
	if loadedConfig.StateDir != originalConfig.StateDir {
		t.Errorf("StateDir mismatch: expected %s, got %s", originalConfig.StateDir, loadedConfig.StateDir)
	}
	if loadedConfig.BusyPolicy != BusyPolicyReject {
		t.Errorf("BusyPolicy mismatch: expected %s, got %s", BusyPolicyReject, loadedConfig.BusyPolicy)
	}
	if !loadedConfig.SignSnapshots {
		t.Error("SignSnapshots should round-trip as true")
	}
	if len(loadedConfig.Extensions) != len(originalConfig.Extensions) {
		t.Errorf("Extensions mismatch: expected %v, got %v", originalConfig.Extensions, loadedConfig.Extensions)
	}
}

func TestLoadFromPartialFileKeepsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	content := "mcp_config_path: /tmp/mcp.json\nbackups: false\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	defaults := DefaultConfig()
	if cfg.MCPConfigPath != "/tmp/mcp.json" {
		t.Errorf("expected overridden mcp_config_path, got %s", cfg.MCPConfigPath)
	}
	if cfg.Backups {
		t.Error("expected backups to be disabled by the file")
	}
	if cfg.StateDir != defaults.StateDir {
		t.Errorf("expected default state dir %s, got %s", defaults.StateDir, cfg.StateDir)
	}
	if !cfg.History {
		t.Error("history should keep its default value")
	}
	if cfg.MaxDepth != defaults.MaxDepth {
		t.Errorf("expected default max depth %d, got %d", defaults.MaxDepth, cfg.MaxDepth)
	}
}

func TestLoadFromEmptyFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, nil, 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("empty config file should load defaults, got: %v", err)
	}
	if cfg.BusyPolicy != BusyPolicyQueue {
		t.Errorf("expected default busy policy, got %s", cfg.BusyPolicy)
	}
}

func TestConfigFilePermissions(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	config := DefaultConfig()
	if err := config.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %s", err)
	}

	fileInfo, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat config file: %s", err)
	}

	mode := fileInfo.Mode()
	if mode&0077 != 0 {
		t.Errorf("Config file should not be readable by group/others, got mode %o", mode)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Version == "" {
		t.Error("Default config should have a version")
	}
	if config.StateDir == "" {
		t.Error("Default config should have a state directory")
	}
	if !strings.HasSuffix(config.MCPConfigPath, "claude_desktop_config.json") {
		t.Errorf("Default MCP config should point at claude_desktop_config.json, got %s", config.MCPConfigPath)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if age, _ := config.ChangeSetMaxAge(); age != 15*time.Minute {
		t.Errorf("expected 15m max change set age, got %v", age)
	}
}

func TestStateSubdirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/state"

	if got := cfg.SnapshotsDir(); got != filepath.Join("/state", "snapshots") {
		t.Errorf("unexpected snapshots dir %s", got)
	}
	if got := cfg.BackupsDir(); got != filepath.Join("/state", "backups") {
		t.Errorf("unexpected backups dir %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown busy policy",
			mutate:  func(c *Config) { c.BusyPolicy = "drop" },
			wantErr: "busy_policy",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.MaxChangeSetAge = "soon" },
			wantErr: "max_change_set_age",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.MaxChangeSetAge = "-1m" },
			wantErr: "negative",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "empty mcp config path",
			mutate:  func(c *Config) { c.MCPConfigPath = "" },
			wantErr: "mcp_config_path",
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: "max_file_size",
		},
		{
			name:    "empty state dir",
			mutate:  func(c *Config) { c.StateDir = "  " },
			wantErr: "state_dir",
		},
		{
			name:    "relative state dir",
			mutate:  func(c *Config) { c.StateDir = "state" },
			wantErr: "state_dir",
		},
		{
			name:    "state dir in a system directory",
			mutate:  func(c *Config) { c.StateDir = "/etc/mcpguard" },
			wantErr: "state_dir",
		},
		{
			name:    "state dir with traversal",
			mutate:  func(c *Config) { c.StateDir = "/tmp/../var/mcpguard" },
			wantErr: "path traversal",
		},
		{
			name:   "empty age disables check",
			mutate: func(c *Config) { c.MaxChangeSetAge = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigErrorHandling(t *testing.T) {
	t.Run("load non-existent file", func(t *testing.T) {
		_, err := LoadFrom("/non/existent/file.yaml")
		if err == nil {
			t.Error("Should error when loading non-existent file")
		}
	})

	t.Run("load invalid YAML", func(t *testing.T) {
		tempDir := t.TempDir()
		invalidFile := filepath.Join(tempDir, "invalid.yaml")
		os.WriteFile(invalidFile, []byte("invalid: yaml: content: ["), 0644)

		_, err := LoadFrom(invalidFile)
		if err == nil {
			t.Error("Should error when loading invalid YAML")
		}
	})

	t.Run("load invalid values", func(t *testing.T) {
		tempDir := t.TempDir()
		file := filepath.Join(tempDir, "config.yaml")
		os.WriteFile(file, []byte("busy_policy: sometimes\n"), 0644)

		_, err := LoadFrom(file)
		if err == nil {
			t.Error("Should error when busy_policy is unknown")
		}
	})
}
