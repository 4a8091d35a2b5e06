package registry_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/storacha/queuectl/pkg/registry"
)

func TestRegister(t *testing.T) {
	t.Run("creates the directory and a pid file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pids")
		reg := registry.New(dir)

		entry, err := reg.Register("worker-1", os.Getpid())
		require.NoError(t, err)
		require.Equal(t, os.Getpid(), entry.PID)
		require.Equal(t, "worker-1", entry.WorkerID)
		require.NotEmpty(t, entry.Hostname)

		_, err = os.Stat(filepath.Join(dir, entry.FileName()))
		require.NoError(t, err)
	})

	t.Run("stamps start time from the clock", func(t *testing.T) {
		clk := clock.NewMock()
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		clk.Set(base)

		reg := registry.New(t.TempDir(), registry.WithClock(clk))
		entry, err := reg.Register("worker-1", os.Getpid())
		require.NoError(t, err)
		require.True(t, entry.StartedAt.Equal(base))
	})
}

func TestLive(t *testing.T) {
	t.Run("missing directory means zero workers", func(t *testing.T) {
		reg := registry.New(filepath.Join(t.TempDir(), "never-created"))
		entries, err := reg.Live()
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("returns live workers and reaps dead ones", func(t *testing.T) {
		dir := t.TempDir()
		alive := map[int32]bool{100: true, 200: false}
		reg := registry.New(dir, registry.WithLivenessProbe(func(pid int32) (bool, error) {
			return alive[pid], nil
		}))

		_, err := reg.Register("live-worker", 100)
		require.NoError(t, err)
		_, err = reg.Register("dead-worker", 200)
		require.NoError(t, err)

		entries, err := reg.Live()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "live-worker", entries[0].WorkerID)

		// The dead worker's file is gone.
		_, err = os.Stat(filepath.Join(dir, "200.pid"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("reaps corrupt entries", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "42.pid"), []byte("not json"), 0644))

		reg := registry.New(dir, registry.WithLivenessProbe(func(int32) (bool, error) {
			return true, nil
		}))

		entries, err := reg.Live()
		require.NoError(t, err)
		require.Empty(t, entries)

		_, err = os.Stat(filepath.Join(dir, "42.pid"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("ignores unrelated files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0644))

		reg := registry.New(dir)
		entries, err := reg.Live()
		require.NoError(t, err)
		require.Empty(t, entries)

		_, err = os.Stat(filepath.Join(dir, "README"))
		require.NoError(t, err)
	})

	t.Run("orders entries by start time", func(t *testing.T) {
		clk := clock.NewMock()
		clk.Set(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

		reg := registry.New(t.TempDir(),
			registry.WithClock(clk),
			registry.WithLivenessProbe(func(int32) (bool, error) { return true, nil }),
		)

		_, err := reg.Register("second", 300)
		require.NoError(t, err)
		clk.Add(-time.Minute)
		_, err = reg.Register("first", 400)
		require.NoError(t, err)

		entries, err := reg.Live()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, "first", entries[0].WorkerID)
		require.Equal(t, "second", entries[1].WorkerID)
	})
}

func TestDeregister(t *testing.T) {
	t.Run("removes the pid file", func(t *testing.T) {
		dir := t.TempDir()
		reg := registry.New(dir)

		_, err := reg.Register("worker-1", 500)
		require.NoError(t, err)
		require.NoError(t, reg.Deregister(500))

		_, err = os.Stat(filepath.Join(dir, "500.pid"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("tolerates a missing file", func(t *testing.T) {
		reg := registry.New(t.TempDir())
		require.NoError(t, reg.Deregister(12345))
	})
}
