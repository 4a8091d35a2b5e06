// Package sqlitedb opens database/sql handles backed by the pure-Go
// SQLite driver.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	logging "github.com/ipfs/go-log/v2"

	"github.com/storacha/queuectl/pkg/database"
)

var log = logging.Logger("database")

// New opens the SQLite database at path with the given options applied
// through the DSN. The pool is pinned to a single connection: SQLite
// allows one writer at a time and pragmas are per-connection, so a pool
// of one keeps both properties without surprises.
func New(path string, opts ...database.Option) (*sql.DB, error) {
	cfg := database.Apply(opts...)
	dsn := cfg.DSN(path)

	log.Debugw("opening sqlite database", "path", path, "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database %s: %w", path, err)
	}

	return db, nil
}

// NewMemory opens an in-memory SQLite database, mainly for tests.
func NewMemory(opts ...database.Option) (*sql.DB, error) {
	return New(":memory:", opts...)
}
