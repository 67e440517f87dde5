package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/app"
	"github.com/EPICLab/synectic/internal/core/config"
)

// newContainer loads the config selected by --config and builds the engine
func newContainer(cmd *cobra.Command) (*app.Container, error) {
	mgr := config.NewManager(flagConfig)
	cfg, err := mgr.Load(cmd.Context())
	if err != nil {
		return nil, err
	}

	log, err := CreateLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	c, err := app.NewContainerWithConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	c.ConfigManager = mgr
	return c, nil
}

// pathArg returns the absolute form of args[0], or the working directory
// when no argument was given
func pathArg(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return wd, nil
	}
	return filepath.Abs(args[0])
}
