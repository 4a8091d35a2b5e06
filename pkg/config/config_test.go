package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppValidate(t *testing.T) {
	valid := App{
		DB:          "queue.db",
		RegistryDir: "/tmp/queuectl_pids",
		Worker: WorkerConfig{
			PollInterval: time.Second,
			Shell:        "/bin/sh",
			StderrLimit:  4096,
		},
	}

	t.Run("valid config", func(t *testing.T) {
		require.NoError(t, valid.Validate())
	})

	t.Run("missing db path", func(t *testing.T) {
		cfg := valid
		cfg.DB = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "DB")
	})

	t.Run("zero stderr limit", func(t *testing.T) {
		cfg := valid
		cfg.Worker.StderrLimit = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad telemetry endpoint", func(t *testing.T) {
		cfg := valid
		cfg.Telemetry.Endpoint = "not a url"
		assert.Error(t, cfg.Validate())
	})
}

func TestHistoryPath(t *testing.T) {
	t.Run("derived from db path", func(t *testing.T) {
		cfg := App{DB: "/var/lib/queuectl/queue.db"}
		assert.Equal(t, "/var/lib/queuectl/queue.db.history", cfg.HistoryPath())
	})

	t.Run("explicit path wins", func(t *testing.T) {
		cfg := App{DB: "queue.db", HistoryDB: "/elsewhere/history.db"}
		assert.Equal(t, "/elsewhere/history.db", cfg.HistoryPath())
	})
}

func TestLoad(t *testing.T) {
	t.Run("defaults alone produce a valid config", func(t *testing.T) {
		viper.Reset()
		SetDefaults()

		cfg, err := Load[App]()
		require.NoError(t, err)
		assert.Equal(t, "queue.db", cfg.DB)
		assert.Equal(t, filepath.Join(os.TempDir(), "queuectl_pids"), cfg.RegistryDir)
		assert.Equal(t, time.Second, cfg.Worker.PollInterval)
		assert.Equal(t, "/bin/sh", cfg.Worker.Shell)
		assert.Equal(t, 4096, cfg.Worker.StderrLimit)
		assert.Empty(t, cfg.Telemetry.Endpoint)
	})

	t.Run("overrides merge over defaults", func(t *testing.T) {
		viper.Reset()
		SetDefaults()
		viper.Set("db", "/data/q.db")
		viper.Set("worker.poll_interval", "250ms")

		cfg, err := Load[App]()
		require.NoError(t, err)
		assert.Equal(t, "/data/q.db", cfg.DB)
		assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		viper.Reset()
		SetDefaults()
		viper.Set("worker.shell", "")

		_, err := Load[App]()
		assert.Error(t, err)
	})
}

func TestWriteDefault(t *testing.T) {
	t.Run("writes a parseable file once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")

		written, err := WriteDefault(path)
		require.NoError(t, err)
		assert.True(t, written)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, toml.Unmarshal(data, &doc))
		assert.Equal(t, "queue.db", doc["db"])

		worker, ok := doc["worker"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "1s", worker["poll_interval"])

		// Empty-valued keys are omitted entirely.
		assert.NotContains(t, doc, "history_db")
	})

	t.Run("leaves an existing file alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("db = \"mine.db\"\n"), 0644))

		written, err := WriteDefault(path)
		require.NoError(t, err)
		assert.False(t, written)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "db = \"mine.db\"\n", string(data))
	})

	t.Run("written file round trips through viper", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		_, err := WriteDefault(path)
		require.NoError(t, err)

		viper.Reset()
		SetDefaults()
		viper.SetConfigFile(path)
		require.NoError(t, viper.ReadInConfig())

		cfg, err := Load[App]()
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	})
}
