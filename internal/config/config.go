package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the workspace-relative location of the config file.
const DefaultConfigPath = ".driftwatch/config.yaml"

// Config holds all driftwatch configuration.
type Config struct {
	// Workspace root; tracked paths are relative to it
	Workspace string `yaml:"workspace"`

	// Project whose generated files are reviewed
	ProjectID string `yaml:"project_id"`

	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Diff      DiffConfig      `yaml:"diff"`
	Detection DetectionConfig `yaml:"detection"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StoreConfig configures the SQLite baseline store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DiffConfig bounds diff computation and display.
type DiffConfig struct {
	// Files longer than this on either side are not diffed
	MaxLines int `yaml:"max_lines"`

	// Unchanged lines shown around each hunk
	ContextLines int `yaml:"context_lines"`
}

// DetectionConfig tunes detection passes.
type DetectionConfig struct {
	// Concurrent ReadCurrent calls during a pass
	ReadConcurrency int `yaml:"read_concurrency"`

	// Current content larger than this is hashed but not kept for display
	MaxContentBytes int64 `yaml:"max_content_bytes"`
}

// WatchConfig configures re-detection on filesystem changes.
type WatchConfig struct {
	// false makes `driftwatch watch` refuse to start
	Enabled  bool     `yaml:"enabled"`
	Debounce string   `yaml:"debounce"`
	Ignore   []string `yaml:"ignore"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		ProjectID: "default",

		Store: StoreConfig{
			DatabasePath: ".driftwatch/baseline.db",
		},

		Logging: DefaultLoggingConfig(),

		Diff: DiffConfig{
			MaxLines:     5000,
			ContextLines: 3,
		},

		Detection: DetectionConfig{
			ReadConcurrency: 8,
			MaxContentBytes: 1 << 20,
		},

		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "500ms",
			Ignore:   []string{".git", ".driftwatch"},
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("DRIFTWATCH_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if project := os.Getenv("DRIFTWATCH_PROJECT"); project != "" {
		c.ProjectID = project
	}
	if path := os.Getenv("DRIFTWATCH_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if level := os.Getenv("DRIFTWATCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Diff.MaxLines <= 0 {
		return fmt.Errorf("diff.max_lines must be positive, got %d", c.Diff.MaxLines)
	}
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("diff.context_lines must not be negative, got %d", c.Diff.ContextLines)
	}
	if c.Detection.ReadConcurrency <= 0 {
		return fmt.Errorf("detection.read_concurrency must be positive, got %d", c.Detection.ReadConcurrency)
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); c.Watch.Debounce != "" && err != nil {
		return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
	}
	return c.Logging.Validate()
}

// DatabasePath resolves the store path against the workspace.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Store.DatabasePath) {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.Workspace, c.Store.DatabasePath)
}

// GetDebounce returns the watch debounce window.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
