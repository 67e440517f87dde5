package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatPretty represents human-readable output format
	FormatPretty OutputFormat = "pretty"
	// FormatJSON represents JSON output format
	FormatJSON OutputFormat = "json"
)

// ParseFormat converts a string to OutputFormat
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "pretty", "":
		return FormatPretty, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Formatter is the interface for output formatting
type Formatter interface {
	// Output formats and displays any data
	Output(data any) error

	// OutputError formats and displays an error
	OutputError(err error) error

	// IsJSON returns true if this formatter outputs JSON
	IsJSON() bool
}

type prettyFormatter struct {
	out    io.Writer
	errOut io.Writer
}

// NewPrettyFormatter creates a formatter for human-readable output
func NewPrettyFormatter(out, errOut io.Writer) Formatter {
	return &prettyFormatter{out: out, errOut: errOut}
}

func (f *prettyFormatter) Output(data any) error {
	// Pretty output expects data already rendered by the caller
	if str, ok := data.(string); ok {
		_, err := fmt.Fprint(f.out, str)
		return err
	}
	_, err := fmt.Fprintln(f.out, data)
	return err
}

func (f *prettyFormatter) OutputError(err error) error {
	_, werr := fmt.Fprintf(f.errOut, "%s %s\n", ErrorIcon, ErrorStyle.Render(err.Error()))
	return werr
}

func (f *prettyFormatter) IsJSON() bool {
	return false
}

type jsonFormatter struct {
	encoder *json.Encoder
	errOut  io.Writer
}

// NewJSONFormatter creates a formatter that writes indented JSON to out
func NewJSONFormatter(out, errOut io.Writer) Formatter {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return &jsonFormatter{encoder: encoder, errOut: errOut}
}

func (f *jsonFormatter) Output(data any) error {
	return f.encoder.Encode(data)
}

func (f *jsonFormatter) OutputError(err error) error {
	// Errors stay plain text on stderr so scripts can keep parsing stdout
	_, werr := fmt.Fprintf(f.errOut, "Error: %v\n", err)
	return werr
}

func (f *jsonFormatter) IsJSON() bool {
	return true
}

// GlobalFormatter is the global formatter instance
var GlobalFormatter = NewPrettyFormatter(os.Stdout, os.Stderr)

// SetGlobalFormatter sets the global formatter
func SetGlobalFormatter(format OutputFormat) error {
	switch format {
	case FormatPretty:
		GlobalFormatter = NewPrettyFormatter(os.Stdout, os.Stderr)
	case FormatJSON:
		GlobalFormatter = NewJSONFormatter(os.Stdout, os.Stderr)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}

// WithFormatter temporarily sets a formatter for a function execution
func WithFormatter(format OutputFormat, fn func() error) error {
	old := GlobalFormatter
	defer func() { GlobalFormatter = old }()

	if err := SetGlobalFormatter(format); err != nil {
		return err
	}
	return fn()
}
