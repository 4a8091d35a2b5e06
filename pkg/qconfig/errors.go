package qconfig

import "fmt"

// ParseError indicates a value could not be parsed to the expected type.
type ParseError struct {
	Value    any
	Expected string
	Cause    error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot parse %v: expected %s: %v", e.Value, e.Expected, e.Cause)
	}
	return fmt.Sprintf("cannot parse %v: expected %s", e.Value, e.Expected)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// RangeError indicates a value is below the allowed minimum.
type RangeError[T any] struct {
	Value T
	Min   T
}

func (e *RangeError[T]) Error() string {
	return fmt.Sprintf("value %v below minimum %v", e.Value, e.Min)
}

// UnknownKeyError indicates an unrecognized setting key.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown configuration key: %s", e.Key)
}

// ValidationError wraps a validation failure with the setting key context.
type ValidationError struct {
	Key   Key
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for '%s': %v", e.Key, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }
