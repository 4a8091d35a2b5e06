package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Key is a configuration key path used with viper.
type Key string

const (
	DBPath        Key = "db"
	HistoryDBPath Key = "history_db"
	RegistryDir   Key = "registry_dir"

	WorkerPollInterval Key = "worker.poll_interval"
	WorkerShell        Key = "worker.shell"
	WorkerStderrLimit  Key = "worker.stderr_limit"

	TelemetryEndpoint        Key = "telemetry.endpoint"
	TelemetryInsecure        Key = "telemetry.insecure"
	TelemetryPublishInterval Key = "telemetry.publish_interval"
)

var defaultValues = map[Key]any{
	DBPath:        "queue.db",
	HistoryDBPath: "",
	RegistryDir:   filepath.Join(os.TempDir(), "queuectl_pids"),

	WorkerPollInterval: time.Second,
	WorkerShell:        "/bin/sh",
	WorkerStderrLimit:  4096,

	TelemetryEndpoint:        "",
	TelemetryInsecure:        false,
	TelemetryPublishInterval: 30 * time.Second,
}

// SetDefaults sets all viper defaults for configuration.
// Called before viper.Unmarshal() to ensure defaults are available.
func SetDefaults() {
	for k, v := range defaultValues {
		viper.SetDefault(string(k), v)
	}
}
