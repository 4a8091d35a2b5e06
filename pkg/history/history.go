// Package history keeps an append-only audit log of finished execution
// attempts in its own database, separate from the queue. Workers write it
// best-effort after each settlement; a history failure never affects the
// job itself.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storacha/queuectl/pkg/database"
	"github.com/storacha/queuectl/pkg/database/gormdb"
)

// Status describes how an execution attempt settled.
type Status string

const (
	// StatusCompleted means the command exited zero.
	StatusCompleted Status = "completed"
	// StatusRetried means the command failed and the job was rescheduled.
	StatusRetried Status = "retried"
	// StatusDead means the command failed and the retry budget was spent.
	StatusDead Status = "dead"
)

// Record is one finished execution attempt.
type Record struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	JobID      string         `gorm:"column:job_id;index;not null" json:"job_id"`
	Attempt    int            `gorm:"column:attempt;not null" json:"attempt"`
	WorkerID   string         `gorm:"column:worker_id" json:"worker_id"`
	StartedAt  time.Time      `gorm:"column:started_at" json:"started_at"`
	FinishedAt time.Time      `gorm:"column:finished_at" json:"finished_at"`
	ExitCode   int            `gorm:"column:exit_code" json:"exit_code"`
	Status     Status         `gorm:"column:status;not null" json:"status"`
	Output     datatypes.JSON `gorm:"column:output" json:"output,omitempty"`
}

func (Record) TableName() string { return "job_history" }

// OutputTails is the JSON payload stored in Record.Output.
type OutputTails struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Tails returns the decoded output payload, or an empty value when none
// was recorded.
func (r *Record) Tails() OutputTails {
	var tails OutputTails
	if len(r.Output) > 0 {
		_ = json.Unmarshal(r.Output, &tails)
	}
	return tails
}

// Store reads and writes history records.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle and migrates the history schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := gormdb.New(path,
		database.WithJournalMode(database.JournalModeWAL),
		database.WithTimeout(5*time.Second),
		database.WithSyncMode(database.SyncModeNORMAL),
	)
	if err != nil {
		return nil, err
	}
	return New(db)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append records a finished attempt. The tails are marshaled into the
// record's JSON output column.
func (s *Store) Append(ctx context.Context, rec *Record, tails OutputTails) error {
	if tails != (OutputTails{}) {
		data, err := json.Marshal(tails)
		if err != nil {
			return fmt.Errorf("encoding output tails: %w", err)
		}
		rec.Output = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("appending history record: %w", err)
	}
	return nil
}

// ForJob returns every recorded attempt for a job, oldest first.
func (s *Store) ForJob(ctx context.Context, jobID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("finished_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", jobID, err)
	}
	return records, nil
}
