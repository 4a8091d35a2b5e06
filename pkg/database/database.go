// Package database holds connection options shared by the SQLite
// constructors in sqlitedb and gormdb.
package database

import (
	"fmt"
	"strings"
	"time"
)

// JournalMode selects the SQLite journal mode pragma.
type JournalMode string

const (
	JournalModeWAL    JournalMode = "WAL"
	JournalModeMEMORY JournalMode = "MEMORY"
	JournalModeDELETE JournalMode = "DELETE"
)

// SyncMode selects the SQLite synchronous pragma.
type SyncMode string

const (
	SyncModeOFF    SyncMode = "OFF"
	SyncModeNORMAL SyncMode = "NORMAL"
	SyncModeFULL   SyncMode = "FULL"
)

// TxLock selects the locking behavior of transactions started on the
// connection. Immediate transactions reserve the write lock up front,
// which serializes writers at BEGIN time instead of at first write.
type TxLock string

const (
	TxLockDeferred  TxLock = "deferred"
	TxLockImmediate TxLock = "immediate"
)

// Config collects the connection settings applied through the DSN.
type Config struct {
	JournalMode JournalMode
	SyncMode    SyncMode
	BusyTimeout time.Duration
	ForeignKeys bool
	TxLock      TxLock
}

// Option is a functional option for configuring SQLite connections.
type Option func(*Config)

// WithJournalMode sets the journal mode pragma.
func WithJournalMode(m JournalMode) Option {
	return func(c *Config) {
		c.JournalMode = m
	}
}

// WithTimeout sets the busy timeout, the time a connection waits on a
// locked database before failing with SQLITE_BUSY.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.BusyTimeout = d
	}
}

// WithSyncMode sets the synchronous pragma.
func WithSyncMode(m SyncMode) Option {
	return func(c *Config) {
		c.SyncMode = m
	}
}

// WithForeignKeyConstraintsEnable enables foreign key enforcement.
func WithForeignKeyConstraintsEnable(enabled bool) Option {
	return func(c *Config) {
		c.ForeignKeys = enabled
	}
}

// WithTxLock sets the transaction locking behavior.
func WithTxLock(l TxLock) Option {
	return func(c *Config) {
		c.TxLock = l
	}
}

// Apply builds a Config from options.
func Apply(opts ...Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DSN renders the config as a driver DSN for the given database path.
// The pure-Go driver understands _pragma=name(value) pairs and _txlock.
func (c Config) DSN(path string) string {
	var params []string
	if c.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		params = append(params, fmt.Sprintf("_pragma=journal_mode(%s)", c.JournalMode))
	}
	if c.SyncMode != "" {
		params = append(params, fmt.Sprintf("_pragma=synchronous(%s)", c.SyncMode))
	}
	if c.ForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if c.TxLock != "" {
		params = append(params, fmt.Sprintf("_txlock=%s", c.TxLock))
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + strings.Join(params, "&")
}
