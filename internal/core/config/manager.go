// Package config provides configuration management for the synectic engine.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EPICLab/synectic/internal/filemanager"
)

const (
	// ConfigDir is the per-user directory holding synectic state
	ConfigDir = ".synectic"
	// ConfigFile is the filename of the configuration
	ConfigFile = "config.yaml"
)

// Manager loads and saves the configuration file
type Manager struct {
	configPath string
	fm         *filemanager.Manager
}

// NewManager creates a manager for the config file at path. An empty path
// selects ~/.synectic/config.yaml.
func NewManager(path string) *Manager {
	if path == "" {
		path = DefaultPath()
	}
	return &Manager{
		configPath: path,
		fm:         filemanager.NewManager(),
	}
}

// DefaultPath returns ~/.synectic/config.yaml, or a relative path when the
// home directory is unknown
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(ConfigDir, ConfigFile)
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

// Load reads the configuration. A missing file yields DefaultConfig.
func (m *Manager) Load(ctx context.Context) (*Config, error) {
	cfg, err := filemanager.ReadYAML[Config](ctx, m.fm, m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	return cfg, nil
}

// Save validates and writes cfg
func (m *Manager) Save(ctx context.Context, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if err := filemanager.WriteYAML(ctx, m.fm, m.configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Exists reports whether the config file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

// Path returns the config file path
func (m *Manager) Path() string {
	return m.configPath
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Worktrees.Dir == "" {
		cfg.Worktrees.Dir = def.Worktrees.Dir
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = def.Watch.Debounce
	}
	if cfg.Watch.Ignore == nil {
		cfg.Watch.Ignore = def.Watch.Ignore
	}
	if cfg.Watch.Buffer <= 0 {
		cfg.Watch.Buffer = def.Watch.Buffer
	}
	if cfg.Cache.MaxCost <= 0 {
		cfg.Cache.MaxCost = def.Cache.MaxCost
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if len(cfg.Filetypes) == 0 {
		cfg.Filetypes = def.Filetypes
	}
}
