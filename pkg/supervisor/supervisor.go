// Package supervisor spawns and stops detached worker processes.
//
// Start re-executes the current binary in a new session per worker, so the
// fleet survives the launching terminal. Stop signals the registered workers
// and lets them drain on their own; the OS process table, not the registry,
// is the source of truth for liveness.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/storacha/queuectl/pkg/registry"
)

var log = logging.Logger("supervisor")

// SpawnFunc launches one detached worker process and returns its pid.
type SpawnFunc func(workerID string) (int, error)

// SignalFunc delivers sig to pid.
type SignalFunc func(pid int, sig syscall.Signal) error

// Supervisor manages a fleet of detached worker processes through the
// registry.
type Supervisor struct {
	registry *registry.Registry
	args     []string
	logDir   string
	spawn    SpawnFunc
	signal   SignalFunc
	alive    func(pid int32) (bool, error)
}

// Config holds all parameters needed to initialize a Supervisor.
type Config struct {
	// Args is the subcommand the re-executed binary runs in each child,
	// typically ["worker", "run", "--db", <path>]. Start appends a per-child
	// --id flag.
	Args []string
	// LogDir receives one log file per spawned worker, wired to the child
	// through GOLOG_FILE.
	LogDir string
}

// Option modifies a Supervisor before use.
type Option func(*Supervisor)

// WithSpawnFunc replaces the detached re-exec spawn.
func WithSpawnFunc(spawn SpawnFunc) Option {
	return func(s *Supervisor) {
		s.spawn = spawn
	}
}

// WithSignalFunc replaces signal delivery.
func WithSignalFunc(signal SignalFunc) Option {
	return func(s *Supervisor) {
		s.signal = signal
	}
}

// WithLivenessProbe replaces the process-table check used by Wait.
func WithLivenessProbe(probe func(pid int32) (bool, error)) Option {
	return func(s *Supervisor) {
		s.alive = probe
	}
}

func New(reg *registry.Registry, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		registry: reg,
		args:     cfg.Args,
		logDir:   cfg.LogDir,
		signal:   syscall.Kill,
		alive:    process.PidExists,
	}
	s.spawn = s.spawnDetached
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches count detached workers and registers each one. It waits
// only for the spawns to succeed, never for the workers themselves. On
// partial failure the already spawned workers keep running and remain
// registered, so a later Stop reaches them.
func (s *Supervisor) Start(count int) ([]registry.Entry, error) {
	if count < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", count)
	}
	if s.logDir != "" {
		if err := os.MkdirAll(s.logDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	entries := make([]*registry.Entry, count)
	var g errgroup.Group
	for i := 0; i < count; i++ {
		g.Go(func() error {
			workerID := uuid.NewString()
			pid, err := s.spawn(workerID)
			if err != nil {
				return fmt.Errorf("spawning worker %d: %w", i+1, err)
			}
			entry, err := s.registry.Register(workerID, pid)
			if err != nil {
				return fmt.Errorf("registering worker %d (pid %d): %w", i+1, pid, err)
			}
			log.Infow("worker spawned", "worker_id", workerID, "pid", pid)
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		missing := lo.Count(entries, nil)
		log.Warnw("worker fleet started partially", "requested", count, "spawned", count-missing, "error", err)
		return nil, err
	}

	out := make([]registry.Entry, count)
	for i, entry := range entries {
		out[i] = *entry
	}
	return out, nil
}

// Stop signals every registered worker with SIGTERM and removes its registry
// entry. A pid that no longer exists counts as stopped. Stop does not wait
// for draining to finish; pair it with Wait for that.
func (s *Supervisor) Stop() ([]registry.Entry, error) {
	entries, err := s.registry.Live()
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}

	var errs error
	stopped := make([]registry.Entry, 0, len(entries))
	for _, entry := range entries {
		if err := s.signal(entry.PID, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = multierror.Append(errs, fmt.Errorf("signaling pid %d: %w", entry.PID, err))
			continue
		}
		if err := s.registry.Deregister(entry.PID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("removing registry entry for pid %d: %w", entry.PID, err))
			continue
		}
		log.Infow("worker signaled", "worker_id", entry.WorkerID, "pid", entry.PID)
		stopped = append(stopped, entry)
	}
	return stopped, errs
}

// Wait blocks until none of the given pids remain in the process table,
// polling at interval. The context deadline bounds the wait. onPoll, when
// non-nil, observes each poll with the number of workers still draining.
func (s *Supervisor) Wait(ctx context.Context, pids []int, interval time.Duration, onPoll func(remaining int)) error {
	if len(pids) == 0 {
		return nil
	}

	op := func() (struct{}, error) {
		remaining := 0
		for _, pid := range pids {
			alive, err := s.alive(int32(pid))
			if err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("probing pid %d: %w", pid, err))
			}
			if alive {
				remaining++
			}
		}
		if onPoll != nil {
			onPoll(remaining)
		}
		if remaining > 0 {
			return struct{}{}, fmt.Errorf("%d workers still draining", remaining)
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
	)
	return err
}

// spawnDetached re-executes the current binary in its own session. The
// child's structured logs go to a per-worker file via GOLOG_FILE since a
// detached process has no useful stderr.
func (s *Supervisor) spawnDetached(workerID string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locating executable: %w", err)
	}

	args := append(slices.Clone(s.args), "--id", workerID)
	cmd := exec.Command(exe, args...)

	env := lo.Reject(os.Environ(), func(kv string, _ int) bool {
		return strings.HasPrefix(kv, "GOLOG_FILE=") || strings.HasPrefix(kv, "GOLOG_OUTPUT=")
	})
	if s.logDir != "" {
		logFile := filepath.Join(s.logDir, fmt.Sprintf("worker-%s.log", workerID))
		env = append(env, "GOLOG_FILE="+logFile, "GOLOG_OUTPUT=file")
	}
	cmd.Env = env

	// Own session: the worker must survive the launching terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting worker process: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the child if it exits while this process is still around.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}
