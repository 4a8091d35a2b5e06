package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// App is the full configuration for the queuectl binary. Every field maps
// to a viper key, so values can come from the config file, environment, or
// flags.
type App struct {
	// DB is the path of the queue database shared by all processes.
	DB string `mapstructure:"db" validate:"required" flag:"db" toml:"db"`
	// HistoryDB is the path of the execution history database. Derived
	// from DB when empty.
	HistoryDB string `mapstructure:"history_db" flag:"history-db" toml:"history_db,omitempty"`
	// RegistryDir holds one PID file per running worker.
	RegistryDir string `mapstructure:"registry_dir" validate:"required" flag:"registry-dir" toml:"registry_dir"`

	Worker    WorkerConfig    `mapstructure:"worker" toml:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" toml:"telemetry,omitempty"`
}

func (a App) Validate() error {
	return validateConfig(a)
}

// HistoryPath returns the configured history database path, or a sibling
// of the queue database when none is set.
func (a App) HistoryPath() string {
	if a.HistoryDB != "" {
		return a.HistoryDB
	}
	return a.DB + ".history"
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	// PollInterval is how long an idle worker sleeps between dispatch
	// attempts. The shutdown signal interrupts the sleep.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required" toml:"poll_interval"`
	// Shell runs job commands as `<shell> -c <command>`.
	Shell string `mapstructure:"shell" validate:"required" toml:"shell"`
	// StderrLimit caps the captured stderr recorded in last_error, in bytes.
	StderrLimit int `mapstructure:"stderr_limit" validate:"min=1" toml:"stderr_limit"`
}

func (w WorkerConfig) Validate() error {
	return validateConfig(w)
}

// TelemetryConfig configures the optional OTLP metrics exporter. Metrics
// stay disabled while Endpoint is empty.
type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint" validate:"omitempty,url" toml:"endpoint,omitempty"`
	Insecure        bool          `mapstructure:"insecure" toml:"insecure,omitempty"`
	PublishInterval time.Duration `mapstructure:"publish_interval" toml:"publish_interval,omitempty"`
}

func (t TelemetryConfig) Validate() error {
	return validateConfig(t)
}

var validate = validator.New()

func validateConfig(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		var combined error
		for _, fe := range fields {
			combined = multierr.Append(combined, fmt.Errorf(
				"field %s failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return combined
	}
	return err
}
