// Package app provides the dependency injection container for the application
package app

import (
	"context"
	"fmt"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/engine"
	"github.com/EPICLab/synectic/internal/core/logger"
)

// Container holds the configuration and the engine built from it
type Container struct {
	ConfigManager *config.Manager
	Config        *config.Config
	Logger        logger.Logger

	// Engine owns the entity store and every synchronization component
	Engine *engine.Engine
}

// NewContainer loads the configuration at configPath (the default location
// when empty) and builds the engine in dependency order
func NewContainer(ctx context.Context, configPath string, log logger.Logger) (*Container, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &Container{
		ConfigManager: config.NewManager(configPath),
		Logger:        log,
	}

	cfg, err := c.ConfigManager.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.Config = cfg

	c.Engine, err = engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return c, nil
}

// NewContainerWithConfig builds a container around an in-memory config.
// It is used by commands and tests that do not read a config file.
func NewContainerWithConfig(cfg *config.Config, log logger.Logger) (*Container, error) {
	if log == nil {
		log = logger.Nop()
	}
	e, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &Container{
		ConfigManager: config.NewManager(""),
		Config:        e.Config(),
		Logger:        log,
		Engine:        e,
	}, nil
}

// Close releases the engine
func (c *Container) Close() error {
	if c.Engine == nil {
		return nil
	}
	return c.Engine.Close()
}
