package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/store"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	resetTree(rootCmd, t.Context())
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

// resetTree returns the package-level command tree to a fresh-process state
// before an execution. Cobra copies the execution context only into a command
// whose own context is still unset, and parsed flag values stick to the
// command, so re-executing the tree would otherwise leave subcommands holding
// the canceled context and the flag values of the first test that ran them.
func resetTree(c *cobra.Command, ctx context.Context) {
	c.SetContext(ctx)
	resetFlags(c.Flags())
	resetFlags(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetTree(sub, ctx)
	}
}

func resetFlags(fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func testPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "queue.db"), filepath.Join(dir, "pids")
}

func TestEnqueueCmd(t *testing.T) {
	db, reg := testPaths(t)

	t.Run("creates a pending job", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"enqueue", `{"id": "job-1", "command": "echo hi"}`)
		require.NoError(t, err)
		require.Contains(t, out, "job job-1 enqueued")

		s, err := store.Open(t.Context(), db)
		require.NoError(t, err)
		defer s.Close()

		job, err := s.GetJob(t.Context(), "job-1")
		require.NoError(t, err)
		require.Equal(t, store.StatePending, job.State)
		require.Equal(t, "echo hi", job.Command)
		require.Equal(t, store.DefaultMaxRetries, job.MaxRetries)
	})

	t.Run("rejects a duplicate id", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"enqueue", `{"id": "job-1", "command": "echo again"}`)
		require.ErrorContains(t, err, "already exists")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"enqueue", `{"id": "job-2", "command": "true", "priority": 9}`)
		require.ErrorContains(t, err, "unknown field")
	})

	t.Run("rejects a missing command", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"enqueue", `{"id": "job-3"}`)
		require.ErrorContains(t, err, "command is required")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"enqueue", `{"id": `)
		require.ErrorContains(t, err, "parsing job JSON")
	})
}

func TestConfigCmd(t *testing.T) {
	db, reg := testPaths(t)

	t.Run("set and get round-trip", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "set", "max_retries", "5")
		require.NoError(t, err)
		require.Contains(t, out, "max_retries updated")

		out, err = runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "get", "max_retries")
		require.NoError(t, err)
		require.Equal(t, "5\n", out)
	})

	t.Run("get falls back to the default", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "get", "backoff_base")
		require.NoError(t, err)
		require.Equal(t, "2\n", out)
	})

	t.Run("rejects an unknown key", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "set", "max_workers", "4")
		require.ErrorContains(t, err, "unknown configuration key")
	})

	t.Run("rejects a value below the minimum", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "set", "backoff_base", "0")
		require.ErrorContains(t, err, "below minimum")
	})

	t.Run("lists every key as json", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"config", "list", "--format", "json")
		require.NoError(t, err)

		var entries []format.ConfigEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 2)
		require.Equal(t, "backoff_base", entries[0].Key)
		require.Equal(t, "2", entries[0].Value)
		require.Equal(t, "max_retries", entries[1].Key)
		require.Equal(t, "5", entries[1].Value)
	})
}

func TestListCmd(t *testing.T) {
	db, reg := testPaths(t)

	for _, payload := range []string{
		`{"id": "list-a", "command": "echo a"}`,
		`{"id": "list-b", "command": "echo b"}`,
	} {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg, "enqueue", payload)
		require.NoError(t, err)
	}

	t.Run("lists pending jobs in enqueue order", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"list", "--state", "pending", "--format", "json")
		require.NoError(t, err)

		var jobs []store.Job
		require.NoError(t, json.Unmarshal([]byte(out), &jobs))
		require.Len(t, jobs, 2)
		require.Equal(t, "list-a", jobs[0].ID)
		require.Equal(t, "list-b", jobs[1].ID)
	})

	t.Run("an empty state renders without error", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"list", "--state", "dead")
		require.NoError(t, err)
		require.Contains(t, out, "no jobs found")
	})

	t.Run("rejects an unknown state", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"list", "--state", "sleeping")
		require.ErrorContains(t, err, "unknown state")
	})
}

func TestStatusCmd(t *testing.T) {
	db, reg := testPaths(t)

	_, err := runCommand(t, "--db", db, "--registry-dir", reg,
		"enqueue", `{"id": "status-1", "command": "true"}`)
	require.NoError(t, err)

	out, err := runCommand(t, "--db", db, "--registry-dir", reg,
		"status", "--format", "json")
	require.NoError(t, err)

	var report format.StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, 1, report.Pending)
	require.Equal(t, 0, report.Processing)
	require.Equal(t, 0, report.ActiveWorkers)
}

func TestDlqCmd(t *testing.T) {
	db, reg := testPaths(t)

	// Walk a job to the dead state through the store directly.
	s, err := store.Open(t.Context(), db)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateJob(t.Context(), "doomed", "false")
	require.NoError(t, err)
	claimed, err := s.ClaimNext(t.Context(), time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, s.MarkDead(t.Context(), "doomed", 4, "exit status 1", 1))

	t.Run("list shows the dead job", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"dlq", "list", "--format", "json")
		require.NoError(t, err)

		var jobs []store.Job
		require.NoError(t, json.Unmarshal([]byte(out), &jobs))
		require.Len(t, jobs, 1)
		require.Equal(t, "doomed", jobs[0].ID)
		require.Equal(t, store.StateDead, jobs[0].State)
	})

	t.Run("retry requeues it with a fresh budget", func(t *testing.T) {
		out, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"dlq", "retry", "doomed")
		require.NoError(t, err)
		require.Contains(t, out, "job doomed requeued")

		job, err := s.GetJob(t.Context(), "doomed")
		require.NoError(t, err)
		require.Equal(t, store.StatePending, job.State)
		require.Equal(t, 0, job.Attempts)
		require.Nil(t, job.LastError)
		require.Nil(t, job.ExitCode)
	})

	t.Run("retry of a live job fails", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"dlq", "retry", "doomed")
		require.ErrorContains(t, err, "not dead")
	})

	t.Run("retry of a missing job fails", func(t *testing.T) {
		_, err := runCommand(t, "--db", db, "--registry-dir", reg,
			"dlq", "retry", "nope")
		require.ErrorContains(t, err, "not found")
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "version:")
	require.Contains(t, out, "commit:")
}
