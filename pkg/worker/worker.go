// Package worker runs the claim, execute, settle loop against the job store.
//
// A worker is single threaded: it claims one due job at a time, hands the
// command to a shell, and settles the result according to the retry policy.
// Shutdown drains rather than kills: an in-flight command runs to completion
// and its result is recorded before Run returns.
package worker

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"

	"github.com/storacha/queuectl/pkg/history"
	"github.com/storacha/queuectl/pkg/qconfig"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/store"
)

var log = logging.Logger("worker")

const (
	// DefaultPollInterval is how long an idle worker sleeps between claims.
	DefaultPollInterval = time.Second
	// DefaultShell interprets job commands.
	DefaultShell = "/bin/sh"
	// DefaultOutputLimit bounds the captured stdout and stderr tails.
	DefaultOutputLimit = 4096

	// settleTimeout bounds the settlement writes that run on a detached
	// context once an attempt finishes.
	settleTimeout = 10 * time.Second
)

// Worker claims and executes jobs until its context is cancelled.
type Worker struct {
	id           string
	store        *store.Store
	settings     *qconfig.Settings
	executor     Executor
	history      *history.Store
	registry     *registry.Registry
	clk          clock.Clock
	pollInterval time.Duration
	state        State
}

// Config holds all parameters needed to initialize a Worker.
type Config struct {
	ID           string
	Executor     Executor
	History      *history.Store
	Registry     *registry.Registry
	Clock        clock.Clock
	PollInterval time.Duration
}

// Option modifies a Config before creating the Worker.
type Option func(*Config)

func WithID(id string) Option {
	return func(cfg *Config) {
		cfg.ID = id
	}
}

func WithExecutor(e Executor) Option {
	return func(cfg *Config) {
		cfg.Executor = e
	}
}

// WithHistory enables the append-only attempt log.
func WithHistory(h *history.Store) Option {
	return func(cfg *Config) {
		cfg.History = h
	}
}

// WithRegistry announces the worker in the process registry for the
// lifetime of Run.
func WithRegistry(r *registry.Registry) Option {
	return func(cfg *Config) {
		cfg.Registry = r
	}
}

func WithClock(clk clock.Clock) Option {
	return func(cfg *Config) {
		cfg.Clock = clk
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.PollInterval = interval
	}
}

func New(s *store.Store, options ...Option) *Worker {
	cfg := &Config{
		ID:           uuid.NewString(),
		Executor:     &ShellExecutor{Shell: DefaultShell, OutputLimit: DefaultOutputLimit},
		Clock:        clock.New(),
		PollInterval: DefaultPollInterval,
	}
	for _, opt := range options {
		opt(cfg)
	}

	return &Worker{
		id:           cfg.ID,
		store:        s,
		settings:     qconfig.New(s),
		executor:     cfg.Executor,
		history:      cfg.History,
		registry:     cfg.Registry,
		clk:          cfg.Clock,
		pollInterval: cfg.PollInterval,
		state:        StateIdle,
	}
}

// ID returns the worker identity, a UUID assigned at construction.
func (w *Worker) ID() string {
	return w.id
}

// Run blocks until ctx is cancelled, then drains and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	if w.registry != nil {
		entry, err := w.registry.Register(w.id, os.Getpid())
		if err != nil {
			return fmt.Errorf("registering worker: %w", err)
		}
		defer func() {
			if err := w.registry.Deregister(entry.PID); err != nil {
				log.Warnw("failed to deregister worker", "worker_id", w.id, "error", err)
			}
		}()
	}

	log.Infow("worker started", "worker_id", w.id, "pid", os.Getpid(), "poll_interval", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			w.state = Next(w.state, EventShutdown)
		default:
		}
		if w.state == StateDraining {
			log.Infow("worker stopped", "worker_id", w.id)
			return nil
		}

		job, err := w.store.ClaimNext(ctx, w.clk.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				w.state = Next(w.state, EventShutdown)
				continue
			}
			log.Errorw("failed to claim job", "worker_id", w.id, "error", err)
			if !w.idle(ctx) {
				w.state = Next(w.state, EventShutdown)
			}
			continue
		}
		if job == nil {
			w.state = Next(w.state, EventClaimMiss)
			if !w.idle(ctx) {
				w.state = Next(w.state, EventShutdown)
			}
			continue
		}

		w.state = Next(w.state, EventClaimHit)
		w.process(ctx, job)
		w.state = Next(w.state, EventChildExit)
	}
}

// idle sleeps one poll interval. Returns false when ctx ended the sleep.
func (w *Worker) idle(ctx context.Context) bool {
	timer := w.clk.Timer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) process(ctx context.Context, job *store.Job) {
	attempt := job.Attempts + 1
	log.Infow("job claimed", "worker_id", w.id, "job_id", job.ID, "attempt", attempt, "max_retries", job.MaxRetries)

	recordActiveDelta(ctx, w.id, 1)
	started := w.clk.Now().UTC()
	outcome := w.executor.Execute(ctx, job.Command)
	finished := w.clk.Now().UTC()
	recordActiveDelta(ctx, w.id, -1)

	w.settle(job, outcome, started, finished)
}

// settle records the outcome of one finished attempt. It runs on a detached
// context so that a cancelled run context cannot abort the writes.
func (w *Worker) settle(job *store.Job, outcome Outcome, started, finished time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	attempt := job.Attempts + 1
	duration := finished.Sub(started)

	if !outcome.Failed() {
		if err := w.store.MarkCompleted(ctx, job.ID, outcome.ExitCode); err != nil {
			log.Errorw("failed to mark job completed", "job_id", job.ID, "error", err)
			return
		}
		log.Infow("job completed", "worker_id", w.id, "job_id", job.ID, "attempt", attempt, "duration", duration)
		w.finish(ctx, job, outcome, history.StatusCompleted, attempt, started, finished)
		return
	}

	if attempt <= job.MaxRetries {
		base, err := w.settings.BackoffBase(ctx)
		if err != nil {
			log.Warnw("failed to read backoff_base, using default", "error", err)
			base = store.DefaultBackoffBase
		}
		runAt := w.clk.Now().UTC().Add(backoffDelay(base, attempt))
		if err := w.store.ScheduleRetry(ctx, job.ID, attempt, runAt, outcome.ErrorText(), outcome.ExitCode); err != nil {
			log.Errorw("failed to schedule retry", "job_id", job.ID, "error", err)
			return
		}
		log.Warnw("job failed, retry scheduled",
			"worker_id", w.id,
			"job_id", job.ID,
			"attempt", attempt,
			"max_retries", job.MaxRetries,
			"exit_code", outcome.ExitCode,
			"run_at", runAt,
		)
		w.finish(ctx, job, outcome, history.StatusRetried, attempt, started, finished)
		return
	}

	if err := w.store.MarkDead(ctx, job.ID, attempt, outcome.ErrorText(), outcome.ExitCode); err != nil {
		log.Errorw("failed to mark job dead", "job_id", job.ID, "error", err)
		return
	}
	log.Errorw("job failed permanently",
		"worker_id", w.id,
		"job_id", job.ID,
		"attempt", attempt,
		"max_retries", job.MaxRetries,
		"exit_code", outcome.ExitCode,
	)
	recordJobDead(ctx, w.id, attempt)
	w.finish(ctx, job, outcome, history.StatusDead, attempt, started, finished)
}

func (w *Worker) finish(ctx context.Context, job *store.Job, outcome Outcome, status history.Status, attempt int, started, finished time.Time) {
	recordJobDuration(ctx, w.id, string(status), attempt, finished.Sub(started))
	w.appendHistory(ctx, job, outcome, status, attempt, started, finished)
}

// appendHistory is best-effort: history failures never affect the job row.
func (w *Worker) appendHistory(ctx context.Context, job *store.Job, outcome Outcome, status history.Status, attempt int, started, finished time.Time) {
	if w.history == nil {
		return
	}
	rec := &history.Record{
		JobID:      job.ID,
		Attempt:    attempt,
		WorkerID:   w.id,
		StartedAt:  started,
		FinishedAt: finished,
		ExitCode:   outcome.ExitCode,
		Status:     status,
	}
	tails := history.OutputTails{Stdout: outcome.Stdout, Stderr: outcome.Stderr}
	if err := w.history.Append(ctx, rec, tails); err != nil {
		log.Warnw("failed to append job history", "job_id", job.ID, "error", err)
	}
}

// backoffDelay is base^attempt seconds, clamped so the conversion to a
// duration cannot overflow.
func backoffDelay(base, attempt int) time.Duration {
	secs := math.Pow(float64(base), float64(attempt))
	if limit := float64(math.MaxInt64 / int64(time.Second)); secs > limit {
		secs = limit
	}
	return time.Duration(secs) * time.Second
}
