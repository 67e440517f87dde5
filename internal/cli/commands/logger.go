package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/logger"
)

// Global flags for logging configuration
var (
	flagLogLevel  string
	flagLogFormat string
)

// RegisterLoggerFlags registers global logging flags
func RegisterLoggerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	cmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json); overrides the config")
}

// CreateLogger creates a logger from the config, with CLI flags taking precedence
func CreateLogger(cfg config.LogConfig) (logger.Logger, error) {
	levelName, formatName := cfg.Level, cfg.Format
	if flagLogLevel != "" {
		levelName = flagLogLevel
	}
	if flagLogFormat != "" {
		formatName = flagLogFormat
	}

	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithOutput(os.Stderr),
	), nil
}
