package logger

import (
	"io"
	"log/slog"
)

// Format is the output encoding of log records
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type config struct {
	level  slog.Level
	output io.Writer
	format Format
	source bool
}

// Option configures a logger
type Option func(*config)

// WithLevel sets the minimum level
func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithOutput sets the destination writer
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithFormat sets the encoding
func WithFormat(format Format) Option {
	return func(c *config) { c.format = format }
}

// WithSource annotates records with the calling file and line
func WithSource() Option {
	return func(c *config) { c.source = true }
}

// WithDebug enables debug records
func WithDebug() Option {
	return WithLevel(slog.LevelDebug)
}

// WithQuiet keeps only warnings and errors
func WithQuiet() Option {
	return WithLevel(slog.LevelWarn)
}
