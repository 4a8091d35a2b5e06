package store

import (
	"context"
	"fmt"
	"time"

	"github.com/storacha/queuectl/pkg/database"
	"github.com/storacha/queuectl/pkg/database/sqlitedb"
)

// Open opens the queue database at path, installs the schema, and returns a
// ready Store. WAL keeps readers unblocked by the writer, the immediate
// txlock makes every transaction write-reserving (the dispatch lock), and
// the busy timeout absorbs short claim races before our own retry kicks in.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sqlitedb.New(path,
		database.WithJournalMode(database.JournalModeWAL),
		database.WithTimeout(5*time.Second),
		database.WithSyncMode(database.SyncModeNORMAL),
		database.WithTxLock(database.TxLockImmediate),
	)
	if err != nil {
		return nil, err
	}

	s := New(db, opts...)
	if err := s.Setup(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing queue database %s: %w", path, err)
	}
	return s, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory(ctx context.Context, opts ...Option) (*Store, error) {
	db, err := sqlitedb.NewMemory(
		database.WithTimeout(5*time.Second),
		database.WithTxLock(database.TxLockImmediate),
	)
	if err != nil {
		return nil, err
	}

	s := New(db, opts...)
	if err := s.Setup(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing in-memory queue database: %w", err)
	}
	return s, nil
}
