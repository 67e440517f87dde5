package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/EPICLab/synectic/internal/core/logger"
)

// ValidateConfig validates the entire configuration
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	dir := cfg.Worktrees.Dir
	if dir == "" || filepath.IsAbs(dir) || strings.Contains(dir, string(filepath.Separator)) || dir == "." || dir == ".." {
		return fmt.Errorf("worktrees.dir must be a single relative directory name, got %q", dir)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Cache.MaxCost < 0 {
		return fmt.Errorf("cache.maxCost must not be negative")
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logger.ParseFormat(cfg.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}

	seen := make(map[string]string)
	for i, ft := range cfg.Filetypes {
		if err := ValidateFiletype(ft); err != nil {
			return fmt.Errorf("invalid filetype #%d: %w", i, err)
		}
		for _, ext := range ft.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(ext, "."))
			if prev, ok := seen[ext]; ok {
				return fmt.Errorf("extension %q claimed by both %s and %s", ext, prev, ft.Name)
			}
			seen[ext] = ft.Name
		}
	}
	return nil
}

// ValidateFiletype validates a single registry entry
func ValidateFiletype(ft Filetype) error {
	if ft.Name == "" {
		return fmt.Errorf("name is required")
	}
	if ft.Handler == "" {
		return fmt.Errorf("handler is required")
	}
	if ft.Directory && len(ft.Extensions) > 0 {
		return fmt.Errorf("directory filetype %s cannot declare extensions", ft.Name)
	}
	return nil
}
