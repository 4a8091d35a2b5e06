// Package gormdb opens GORM handles backed by the pure-Go SQLite driver.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	logging "github.com/ipfs/go-log/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storacha/queuectl/pkg/database"
)

var log = logging.Logger("database/gorm")

// New opens the SQLite database at path through GORM. Connection pragmas
// come from the shared database options; the pool is pinned to a single
// connection like sqlitedb.
func New(path string, opts ...database.Option) (*gorm.DB, error) {
	cfg := database.Apply(opts...)
	dsn := cfg.DSN(path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: &gormLogger{slowThreshold: 200 * time.Millisecond},
	})
	if err != nil {
		return nil, fmt.Errorf("opening gorm sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

// NewMemory opens an in-memory GORM database, useful in tests.
func NewMemory(opts ...database.Option) (*gorm.DB, error) {
	return New(":memory:", opts...)
}

// gormLogger routes GORM's logging through go-log.
type gormLogger struct {
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	log.Infof(msg, args...)
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	log.Warnf(msg, args...)
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	log.Errorf(msg, args...)
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		log.Errorw("query failed", "error", err, "duration", elapsed, "rows", rows, "sql", query)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		query, rows := fc()
		log.Warnw("slow query", "duration", elapsed, "rows", rows, "sql", query)
	default:
		query, rows := fc()
		log.Debugw("query", "duration", elapsed, "rows", rows, "sql", query)
	}
}
