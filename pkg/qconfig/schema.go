package qconfig

import (
	"fmt"
	"strconv"
)

// Schema handles parsing raw setting values and validating them.
type Schema interface {
	// ParseAndValidate converts a raw value (from the CLI or the settings
	// table) to a typed value and validates it against constraints.
	ParseAndValidate(raw string) (any, error)

	// TypeDescription returns human-readable type info for error messages
	// and help output.
	TypeDescription() string
}

// IntSchema parses and validates integer values with a lower bound.
type IntSchema struct {
	Min int
}

func (s IntSchema) TypeDescription() string {
	return fmt.Sprintf("integer >= %d", s.Min)
}

func (s IntSchema) ParseAndValidate(raw string) (any, error) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ParseError{Value: raw, Expected: "integer", Cause: err}
	}
	if i < s.Min {
		return nil, &RangeError[int]{Value: i, Min: s.Min}
	}
	return i, nil
}
