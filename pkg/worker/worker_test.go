package worker_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/storacha/queuectl/pkg/database/gormdb"
	"github.com/storacha/queuectl/pkg/history"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/store"
	"github.com/storacha/queuectl/pkg/worker"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newMockClock() *clock.Mock {
	mck := clock.NewMock()
	mck.Set(base)
	return mck
}

func newTestStore(t *testing.T, clk clock.Clock) *store.Store {
	t.Helper()
	st, err := store.OpenMemory(t.Context(), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

// startWorker runs w until the returned stop func is called. stop cancels
// the run context and waits for Run to return.
func startWorker(t *testing.T, w *worker.Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

// scriptedExecutor returns canned outcomes in order, repeating the last one.
type scriptedExecutor struct {
	mu       sync.Mutex
	outcomes []worker.Outcome
	calls    int
}

func (e *scriptedExecutor) Execute(context.Context, string) worker.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if i >= len(e.outcomes) {
		i = len(e.outcomes) - 1
	}
	return e.outcomes[i]
}

func (e *scriptedExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// blockingExecutor parks its single expected call until released.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	outcome worker.Outcome
}

func (e *blockingExecutor) Execute(context.Context, string) worker.Outcome {
	close(e.started)
	<-e.release
	return e.outcome
}

func TestRunCompletesJob(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	_, err := st.CreateJob(t.Context(), "job-1", "echo hi")
	require.NoError(t, err)

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 0, Stdout: "hi\n"}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Equal(t, store.StateCompleted, job.State)
	require.Equal(t, 0, job.Attempts)
	require.NotNil(t, job.ExitCode)
	require.Equal(t, 0, *job.ExitCode)
	require.Nil(t, job.LastError)
	require.Equal(t, 1, exec.count())
}

func TestRunSchedulesRetry(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	_, err := st.CreateJob(t.Context(), "job-1", "false")
	require.NoError(t, err)

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 1, Stderr: "boom\n"}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StatePending && job.Attempts == 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	// Default backoff_base is 2, so the first retry lands 2^1 seconds out.
	require.True(t, job.RunAt.Equal(base.Add(2*time.Second)), "run_at = %v", job.RunAt)
	require.NotNil(t, job.LastError)
	require.Equal(t, "boom\n", *job.LastError)
	require.NotNil(t, job.ExitCode)
	require.Equal(t, 1, *job.ExitCode)
	require.Equal(t, 1, exec.count())
}

func TestRunMarksDead(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	require.NoError(t, st.ConfigSet(t.Context(), "max_retries", "0"))
	_, err := st.CreateJob(t.Context(), "job-1", "false")
	require.NoError(t, err)

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 7, Stderr: "fatal\n"}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StateDead
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LastError)
	require.Equal(t, "fatal\n", *job.LastError)
	require.NotNil(t, job.ExitCode)
	require.Equal(t, 7, *job.ExitCode)
	require.Equal(t, 1, exec.count())
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	require.NoError(t, st.ConfigSet(t.Context(), "max_retries", "2"))
	require.NoError(t, st.ConfigSet(t.Context(), "backoff_base", "1"))
	_, err := st.CreateJob(t.Context(), "job-1", "false")
	require.NoError(t, err)

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 1, Stderr: "nope\n"}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))
	stop := startWorker(t, w)

	// Retries are due 1 second out, so tick the clock forward until the
	// budget is spent.
	require.Eventually(t, func() bool {
		mck.Add(time.Second)
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StateDead
	}, 10*time.Second, 20*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 3, job.Attempts, "max_retries=2 allows exactly three executions")
	require.Equal(t, 3, exec.count())
}

func TestBackoffBaseFromSettings(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	_, err := st.CreateJob(t.Context(), "job-1", "false")
	require.NoError(t, err)
	// Changed after enqueue: the value in effect at failure time wins.
	require.NoError(t, st.ConfigSet(t.Context(), "backoff_base", "7"))

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 1, Stderr: "x\n"}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StatePending && job.Attempts == 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.True(t, job.RunAt.Equal(base.Add(7*time.Second)), "run_at = %v", job.RunAt)
}

func TestRunDrainsWhileIdle(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)

	exec := &scriptedExecutor{outcomes: []worker.Outcome{{ExitCode: 0}}}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))

	// Cancellation interrupts the idle sleep: the mock clock never fires
	// the poll timer, yet the worker still exits.
	stop := startWorker(t, w)
	stop()

	require.Equal(t, 0, exec.count())
}

func TestRunDrainsInFlight(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	_, err := st.CreateJob(t.Context(), "job-1", "sleep 60")
	require.NoError(t, err)

	exec := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		outcome: worker.Outcome{ExitCode: 0},
	}
	w := worker.New(st, worker.WithClock(mck), worker.WithExecutor(exec))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-exec.started:
	case <-time.After(5 * time.Second):
		t.Fatal("command never started")
	}

	// Shutdown arrives while the command is running. The worker must let it
	// finish and settle the result before exiting.
	cancel()
	close(exec.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain")
	}

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Equal(t, store.StateCompleted, job.State)
}

func TestRunRegistersWorker(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	reg := registry.New(t.TempDir())

	w := worker.New(st, worker.WithClock(mck), worker.WithRegistry(reg))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		entries, err := reg.Live()
		return err == nil && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	entries, err := reg.Live()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, w.ID(), entries[0].WorkerID)
	require.Equal(t, os.Getpid(), entries[0].PID)

	stop()

	entries, err = reg.Live()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunRecordsHistory(t *testing.T) {
	mck := newMockClock()
	st := newTestStore(t, mck)
	require.NoError(t, st.ConfigSet(t.Context(), "backoff_base", "1"))
	_, err := st.CreateJob(t.Context(), "job-1", "flaky")
	require.NoError(t, err)

	db, err := gormdb.NewMemory()
	require.NoError(t, err)
	hist, err := history.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, hist.Close()) })

	exec := &scriptedExecutor{outcomes: []worker.Outcome{
		{ExitCode: 1, Stderr: "bad\n"},
		{ExitCode: 0, Stdout: "ok\n"},
	}}
	w := worker.New(st,
		worker.WithClock(mck),
		worker.WithExecutor(exec),
		worker.WithHistory(hist),
	)
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		mck.Add(time.Second)
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StateCompleted
	}, 10*time.Second, 20*time.Millisecond)
	stop()

	records, err := hist.ForJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, 1, records[0].Attempt)
	require.Equal(t, history.StatusRetried, records[0].Status)
	require.Equal(t, 1, records[0].ExitCode)
	require.Equal(t, w.ID(), records[0].WorkerID)
	require.Equal(t, "bad\n", records[0].Tails().Stderr)
	require.False(t, records[0].StartedAt.IsZero())

	require.Equal(t, 2, records[1].Attempt)
	require.Equal(t, history.StatusCompleted, records[1].Status)
	require.Equal(t, 0, records[1].ExitCode)
	require.Equal(t, "ok\n", records[1].Tails().Stdout)
}

func TestRunWithShellExecutor(t *testing.T) {
	st := newTestStore(t, clock.New())
	_, err := st.CreateJob(t.Context(), "job-1", "echo hello")
	require.NoError(t, err)

	w := worker.New(st, worker.WithPollInterval(10*time.Millisecond))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(t.Context(), "job-1")
		return err == nil && job.State == store.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	job, err := st.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.ExitCode)
	require.Equal(t, 0, *job.ExitCode)
}
