// Copyright (c) https://github.com/maragudk/goqite
// https://github.com/maragudk/goqite/blob/6d1bf3c0bcab5a683e0bc7a82a4c76ceac1bbe3f/LICENSE
//
// This source code is licensed under the MIT license found in the LICENSE file
// in the root directory of this source tree, or at:
// https://opensource.org/licenses/MIT

// Package store is the persistence layer: a single SQLite database holding
// jobs and queue settings. It doubles as the dispatch lock; every mutating
// operation runs in an immediate write-reserving transaction, so concurrent
// workers serialize on the database itself and a claimed job is visible as
// processing before any other reader can observe it.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"

	internalsql "github.com/storacha/queuectl/pkg/store/internal/sql"
)

var log = logging.Logger("store")

//go:embed schema.sql
var schemaSQL string

// rfc3339Milli is like time.RFC3339Nano, but with millisecond precision, and
// fractional seconds do not have trailing zeros removed.
const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

const (
	// busyRetryInterval is the pause between retries of a transaction that
	// lost the SQLITE_BUSY race.
	busyRetryInterval = 50 * time.Millisecond
	// busyRetryBudget bounds how long an operation keeps retrying before the
	// contention error surfaces to the caller.
	busyRetryBudget = 5 * time.Second
)

// Seeded setting defaults, mirrored in schema.sql.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2
)

// Store provides all access to the queue database.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		s.clk = clk
	}
}

// New wraps an open database handle. Call Setup before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		clk: clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup installs the schema and seeds setting defaults. Idempotent.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("setup queue schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a pending job due immediately. The retry budget is the
// max_retries setting read fresh inside the same transaction, so the job
// carries a snapshot of the setting at enqueue time.
func (s *Store) CreateJob(ctx context.Context, id, command string) (*Job, error) {
	var job *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		maxRetries, err := settingInt(ctx, tx, "max_retries", DefaultMaxRetries)
		if err != nil {
			return err
		}

		now := formatTime(s.clk.Now())
		res, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, command, state, attempts, max_retries, run_at, enqueued_at)
			VALUES (?, ?, 'pending', 0, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			id, command, maxRetries, now, now)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		job, err = getJobTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically moves the next eligible pending job to processing and
// returns it, or nil when nothing is due. Eligible means pending with
// run_at <= now; among eligible jobs the earliest run_at wins, ties broken
// by enqueued_at, then id, which keeps dispatch deterministic and stops old
// retries from starving.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	var job *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE jobs
			SET state = 'processing'
			WHERE id = (
				SELECT id FROM jobs
				WHERE state = 'pending' AND run_at <= ?
				ORDER BY run_at, enqueued_at, id
				LIMIT 1
			)
			RETURNING id, command, state, attempts, max_retries, run_at, enqueued_at, last_error, exit_code`,
			formatTime(now))

		j, err := scanJob(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkCompleted settles a processing job as completed.
func (s *Store) MarkCompleted(ctx context.Context, id string, exitCode int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET state = 'completed', exit_code = ?, last_error = NULL
			WHERE id = ? AND state = 'processing'`,
			exitCode, id)
		if err != nil {
			return err
		}
		return requireSettled(ctx, tx, res, id)
	})
}

// ScheduleRetry settles a failed processing job back to pending with its new
// attempt count and future run_at.
func (s *Store) ScheduleRetry(ctx context.Context, id string, attempts int, runAt time.Time, lastError string, exitCode int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET state = 'pending', attempts = ?, run_at = ?, last_error = ?, exit_code = ?
			WHERE id = ? AND state = 'processing'`,
			attempts, formatTime(runAt), lastError, exitCode, id)
		if err != nil {
			return err
		}
		return requireSettled(ctx, tx, res, id)
	})
}

// MarkDead settles a processing job whose retry budget is exhausted.
func (s *Store) MarkDead(ctx context.Context, id string, attempts int, lastError string, exitCode int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET state = 'dead', attempts = ?, last_error = ?, exit_code = ?
			WHERE id = ? AND state = 'processing'`,
			attempts, lastError, exitCode, id)
		if err != nil {
			return err
		}
		return requireSettled(ctx, tx, res, id)
	})
}

// RequeueDead moves a dead job back to pending with a fresh retry budget:
// attempts reset to zero, due immediately, failure fields cleared.
func (s *Store) RequeueDead(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET state = 'pending', attempts = 0, run_at = ?, last_error = NULL, exit_code = NULL
			WHERE id = ? AND state = 'dead'`,
			formatTime(s.clk.Now()), id)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			job, err := getJobTx(ctx, tx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s is %s", ErrNotDead, id, job.State)
		}
		return nil
	})
}

// GetJob returns a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, state, attempts, max_retries, run_at, enqueued_at, last_error, exit_code
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// ListByState returns all jobs in the given state ordered by enqueue time.
func (s *Store) ListByState(ctx context.Context, state State) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, state, attempts, max_retries, run_at, enqueued_at, last_error, exit_code
		FROM jobs WHERE state = ?
		ORDER BY enqueued_at, id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Summary returns per-state job counts.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	var sum Summary
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Summary{}, err
		}
		switch State(state) {
		case StatePending:
			sum.Pending = count
		case StateProcessing:
			sum.Processing = count
		case StateCompleted:
			sum.Completed = count
		case StateDead:
			sum.Dead = count
		}
	}
	return sum, rows.Err()
}

// ConfigGet returns the raw value of a setting, or ErrConfigNotFound.
func (s *Store) ConfigGet(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// ConfigSet upserts a setting. Validation happens above this layer.
func (s *Store) ConfigSet(ctx context.Context, key, value string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			key, value)
		return err
	})
}

// inTx runs fn in an immediate transaction, retrying on SQLITE_BUSY with a
// constant interval until the retry budget runs out. Only contention errors
// retry; everything else is permanent.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	attempt := 0
	op := func() (struct{}, error) {
		if err := internalsql.InTx(ctx, s.db, fn); err != nil {
			if isBusy(err) {
				attempt++
				log.Debugw("database busy, retrying transaction", "attempt", attempt)
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(busyRetryInterval)),
		backoff.WithMaxElapsedTime(busyRetryBudget),
	)
	return err
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// requireSettled enforces that a settlement touched exactly one processing
// row, reporting the actual state otherwise.
func requireSettled(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		job, err := getJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s", ErrNotProcessing, id, job.State)
	}
	return nil
}

func getJobTx(ctx context.Context, tx *sql.Tx, id string) (*Job, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, command, state, attempts, max_retries, run_at, enqueued_at, last_error, exit_code
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// settingInt reads an integer setting inside a transaction, falling back to
// the given default when the key was never set.
func settingInt(ctx context.Context, tx *sql.Tx, key string, fallback int) (int, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("setting %s has non-integer value %q: %w", key, value, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		state     string
		runAt     string
		enqueued  string
		lastError sql.NullString
		exitCode  sql.NullInt64
	)
	if err := row.Scan(&job.ID, &job.Command, &state, &job.Attempts, &job.MaxRetries,
		&runAt, &enqueued, &lastError, &exitCode); err != nil {
		return nil, err
	}

	job.State = State(state)

	var err error
	if job.RunAt, err = parseTime(runAt); err != nil {
		return nil, fmt.Errorf("parsing run_at of job %s: %w", job.ID, err)
	}
	if job.EnqueuedAt, err = parseTime(enqueued); err != nil {
		return nil, fmt.Errorf("parsing enqueued_at of job %s: %w", job.ID, err)
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		job.ExitCode = &code
	}
	return &job, nil
}

// formatTime renders a timestamp in UTC with millisecond precision. All
// stored timestamps share this fixed-width form, so lexicographic order on
// the column equals time order and run_at <= now works as a string compare.
func formatTime(t time.Time) string {
	return t.UTC().Format(rfc3339Milli)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(rfc3339Milli, s)
}
