package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"mcpguard/internal/logging"
	"mcpguard/pkg/fileops"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const APP_NAME = "mcpguard" // application name used for config and state directories

// Busy policies for the single-operation gate.
const (
	BusyPolicyQueue  = "queue"
	BusyPolicyReject = "reject"
)

// Config holds user configuration for mcpguard.
type Config struct {
	// MCPConfigPath is the MCP client configuration file being protected.
	MCPConfigPath string `yaml:"mcp_config_path"`
	// StateDir holds snapshots, backups and the baseline journal.
	StateDir string `yaml:"state_dir"`

	BusyPolicy      string `yaml:"busy_policy"`        // "queue" or "reject"
	MaxChangeSetAge string `yaml:"max_change_set_age"` // duration, e.g. "15m"

	Backups       bool `yaml:"backups"`
	SignSnapshots bool `yaml:"sign_snapshots"`
	History       bool `yaml:"history"`

	Workers     int   `yaml:"workers"`
	MaxFileSize int64 `yaml:"max_file_size"` // bytes

	// Path discovery tuning
	Interpreters []string `yaml:"interpreters"`
	Extensions   []string `yaml:"extensions"`
	SkipDirs     []string `yaml:"skip_dirs"`
	MaxDepth     int      `yaml:"max_depth"`

	Version string `yaml:"version"`
}

// ConfigPath returns the standard config file path for the current platform
func ConfigPath() (string, error) {
	configDir := filepath.Join(xdg.ConfigHome, APP_NAME)
	configPath := filepath.Join(configDir, "config.yaml")

	logging.Debug("Determined config paths", "path", configPath)
	return configPath, nil
}

// DefaultStateDir returns the default state directory in the user's data directory.
func DefaultStateDir() string {
	return filepath.Join(xdg.DataHome, APP_NAME)
}

// DefaultMCPConfigPath returns where Claude Desktop keeps its MCP configuration.
func DefaultMCPConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Claude", "claude_desktop_config.json")
		}
		return filepath.Join(xdg.Home, "AppData", "Roaming", "Claude", "claude_desktop_config.json")
	case "darwin":
		return filepath.Join(xdg.Home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	default:
		return filepath.Join(xdg.ConfigHome, "Claude", "claude_desktop_config.json")
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MCPConfigPath:   DefaultMCPConfigPath(),
		StateDir:        DefaultStateDir(),
		BusyPolicy:      BusyPolicyQueue,
		MaxChangeSetAge: "15m",
		Backups:         true,
		SignSnapshots:   false,
		History:         true,
		Workers:         runtime.NumCPU(),
		MaxFileSize:     10 * 1024 * 1024,
		Interpreters:    []string{"python", "python3", "py", "node", "npx", "npm", "uv", "uvx", "bun", "deno", "bash", "sh"},
		Extensions:      []string{".py", ".js", ".ts", ".mjs", ".cjs", ".json", ".yaml", ".yml", ".sh", ".bat"},
		SkipDirs:        []string{"node_modules", "__pycache__", ".git", "venv", ".venv"},
		MaxDepth:        20,
		Version:         "1.0",
	}
}

// Load loads the config from the standard location.
// A missing config file is not an error: defaults are returned.
func Load() (*Config, error) {
	configPath, exists := FindConfigFile()
	logging.Debug("Loading config from", "path", configPath, "exists", exists)
	if !exists {
		cfg := DefaultConfig()
		return &cfg, nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads config from a specific path. Keys absent from the file keep
// their default values.
func LoadFrom(path string) (*Config, error) {
	logging.Debug("Reading config file", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.MCPConfigPath = fileops.ExpandPath(cfg.MCPConfigPath)
	cfg.StateDir = fileops.ExpandPath(cfg.StateDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindConfigFile returns the path to the config file, and whether it exists.
func FindConfigFile() (string, bool) {
	primary, err := ConfigPath()
	if err != nil {
		logging.Error("Failed to get config path", "error", err)
		return "", false
	}

	if _, err := os.Stat(primary); err == nil {
		logging.Debug("Config found at primary path", "path", primary)
		return primary, true
	}

	return primary, false
}

// Validate checks field values that cannot be fixed by falling back to defaults.
func (c *Config) Validate() error {
	if c.MCPConfigPath == "" {
		return fmt.Errorf("invalid config: mcp_config_path cannot be empty")
	}
	if err := fileops.ValidateStoragePath(c.StateDir); err != nil {
		return fmt.Errorf("invalid config: state_dir: %w", err)
	}
	if c.BusyPolicy != BusyPolicyQueue && c.BusyPolicy != BusyPolicyReject {
		return fmt.Errorf("invalid config: busy_policy must be %q or %q, got %q", BusyPolicyQueue, BusyPolicyReject, c.BusyPolicy)
	}
	if _, err := c.ChangeSetMaxAge(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid config: workers must be positive, got %d", c.Workers)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("invalid config: max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("invalid config: max_depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// ChangeSetMaxAge parses MaxChangeSetAge. Zero disables the age check.
func (c *Config) ChangeSetMaxAge() (time.Duration, error) {
	if c.MaxChangeSetAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MaxChangeSetAge)
	if err != nil {
		return 0, fmt.Errorf("invalid config: max_change_set_age: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid config: max_change_set_age cannot be negative")
	}
	return d, nil
}

// SnapshotsDir is where baseline records live.
func (c *Config) SnapshotsDir() string {
	return filepath.Join(c.StateDir, "snapshots")
}

// BackupsDir is where files are copied before a revert overwrites them.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.StateDir, "backups")
}

// Save writes the config to the standard location
func (c *Config) Save() error {
	configPath, _ := FindConfigFile()
	return c.SaveTo(configPath)
}

// SaveTo writes the config to a specific path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create file with restrictive permissions (600) for security
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
