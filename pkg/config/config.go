// Package config loads and validates application-level configuration:
// file paths, worker tuning, and telemetry endpoints. Queue settings that
// live in the store (max_retries, backoff_base) are handled by pkg/qconfig
// instead.
package config

import (
	"github.com/spf13/viper"
)

// Validatable is implemented by every loadable configuration struct.
type Validatable interface {
	Validate() error
}

// Load unmarshals the merged viper state (defaults, config file, env,
// flags) into T and validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, err
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}
