// Package format renders CLI output as either a styled table or JSON.
package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat represents the format for CLI output.
type OutputFormat string

const (
	TableFormat OutputFormat = "table"
	JSONFormat  OutputFormat = "json"
)

// ParseOutputFormat parses a string into an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "table", "":
		return TableFormat, nil
	case "json":
		return JSONFormat, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (valid formats: table or json)", s)
	}
}

// Formatter is an interface for formatting output.
type Formatter interface {
	Format(data any) error
}

// NewFormatter creates a formatter based on the output format.
func NewFormatter(format OutputFormat, writer io.Writer) Formatter {
	switch format {
	case JSONFormat:
		return &JSONFormatter{writer: writer}
	default:
		return &TableFormatter{writer: writer}
	}
}

// JSONFormatter formats output as indented JSON.
type JSONFormatter struct {
	writer io.Writer
}

func (f *JSONFormatter) Format(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// StatusReport is the aggregate view printed by the status command.
type StatusReport struct {
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	Dead          int `json:"dead"`
	ActiveWorkers int `json:"active_workers"`
}

// ConfigEntry is one settings key with its current value.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
