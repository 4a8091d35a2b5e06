// Package registry tracks running worker processes through a directory of
// PID files. The registry is advisory: the OS process table is the truth,
// and entries whose process has exited are reaped whenever the directory
// is scanned.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"github.com/shirou/gopsutil/v4/process"
)

var log = logging.Logger("registry")

// Entry is one worker's registration.
type Entry struct {
	WorkerID  string    `json:"worker_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// FileName returns the name of the registry file holding this entry.
func (e *Entry) FileName() string {
	return fmt.Sprintf("%d.pid", e.PID)
}

// Registry manages PID files under a single directory, one file per
// worker named <pid>.pid.
type Registry struct {
	dir   string
	clk   clock.Clock
	alive func(pid int32) (bool, error)
}

type Option func(*Registry)

// WithClock overrides the clock used to stamp registrations.
func WithClock(clk clock.Clock) Option {
	return func(r *Registry) {
		r.clk = clk
	}
}

// WithLivenessProbe overrides how the registry decides whether a pid is
// still running.
func WithLivenessProbe(probe func(pid int32) (bool, error)) Option {
	return func(r *Registry) {
		r.alive = probe
	}
}

func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:   dir,
		clk:   clock.New(),
		alive: process.PidExists,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the registry directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Register writes a PID file for the given worker and returns the entry.
func (r *Registry) Register(workerID string, pid int) (*Entry, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	entry := &Entry{
		WorkerID:  workerID,
		PID:       pid,
		Hostname:  hostname,
		StartedAt: r.clk.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding registry entry: %w", err)
	}
	if err := os.WriteFile(r.path(pid), data, 0644); err != nil {
		return nil, fmt.Errorf("writing registry entry: %w", err)
	}

	log.Debugw("worker registered", "pid", pid, "worker_id", workerID)
	return entry, nil
}

// Deregister removes the PID file for the given pid. A missing file is
// not an error.
func (r *Registry) Deregister(pid int) error {
	err := os.Remove(r.path(pid))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing registry entry: %w", err)
	}
	return nil
}

// Live scans the registry, removes entries whose process is gone or whose
// file is unreadable, and returns the remaining entries ordered by start
// time. A missing registry directory means zero workers.
func (r *Registry) Live() ([]Entry, error) {
	files, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry dir: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".pid") {
			continue
		}
		path := filepath.Join(r.dir, f.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnw("unreadable registry entry, removing", "path", path, "error", err)
			r.reap(path)
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warnw("corrupt registry entry, removing", "path", path, "error", err)
			r.reap(path)
			continue
		}

		ok, err := r.alive(int32(entry.PID))
		if err != nil {
			return nil, fmt.Errorf("probing pid %d: %w", entry.PID, err)
		}
		if !ok {
			log.Debugw("stale registry entry, removing", "pid", entry.PID, "worker_id", entry.WorkerID)
			r.reap(path)
			continue
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].PID < entries[j].PID
		}
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})
	return entries, nil
}

func (r *Registry) reap(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnw("failed to remove registry entry", "path", path, "error", err)
	}
}

func (r *Registry) path(pid int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%d.pid", pid))
}
