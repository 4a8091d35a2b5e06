package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// WriteDefault writes the built-in defaults to path as a TOML config file.
// It refuses to overwrite an existing file and reports whether a file was
// written.
func WriteDefault(path string) (bool, error) {
	doc := make(map[string]any)
	for key, value := range defaultValues {
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		setNestedValue(doc, string(key), value)
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshaling config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(out); err != nil {
		return false, fmt.Errorf("writing config file: %w", err)
	}
	return true, nil
}

// setNestedValue sets a value in a nested map using dot-notation key.
// e.g., "worker.poll_interval" -> config["worker"]["poll_interval"]
func setNestedValue(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	current := m

	for _, part := range parts[:len(parts)-1] {
		if _, ok := current[part]; !ok {
			current[part] = make(map[string]any)
		}
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			newMap := make(map[string]any)
			current[part] = newMap
			current = newMap
		}
	}

	// Format duration values as strings for TOML
	switch v := value.(type) {
	case time.Duration:
		current[parts[len(parts)-1]] = v.String()
	default:
		current[parts[len(parts)-1]] = value
	}
}
