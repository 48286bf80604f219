// -----------------------------------------------------------------------
// Log Store - indexed transfer-log lines and per-file index checkpoints
// -----------------------------------------------------------------------

package storage

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// LogStore persists indexed transfer-log entries and the checkpoints
// the incremental indexer resumes from.
type LogStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLogStore builds the log store on an open connection.
func NewLogStore(db *BadgerDB, logger arbor.ILogger) *LogStore {
	return &LogStore{db: db, logger: logger}
}

// Append stores a batch of indexed lines.
func (s *LogStore) Append(entries []*models.TransferLogEntry) error {
	for _, entry := range entries {
		if err := s.db.Store().Insert(badgerhold.NextSequence(), entry); err != nil {
			return fmt.Errorf("failed to index log entry: %w", err)
		}
	}
	return nil
}

// ByJob returns the newest indexed lines for one job, optionally
// filtered by level.
func (s *LogStore) ByJob(jobID string, level models.LogLevel, limit int) ([]*models.TransferLogEntry, error) {
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID")
	if level != "" {
		query = query.And("Level").Eq(level)
	}
	var entries []*models.TransferLogEntry
	if err := s.db.Store().Find(&entries, query.SortBy("Timestamp").Reverse().Limit(limit)); err != nil {
		return nil, fmt.Errorf("failed to query indexed logs: %w", err)
	}
	return entries, nil
}

// Checkpoint returns the saved index position for a source file, or a
// zero checkpoint when the file has never been indexed.
func (s *LogStore) Checkpoint(filePath string) (*models.LogCheckpoint, error) {
	var cp models.LogCheckpoint
	err := s.db.Store().Get(filePath, &cp)
	if err == badgerhold.ErrNotFound {
		return &models.LogCheckpoint{FilePath: filePath}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint for %s: %w", filePath, err)
	}
	return &cp, nil
}

// SaveCheckpoint records how far a source file has been indexed.
func (s *LogStore) SaveCheckpoint(cp *models.LogCheckpoint) error {
	cp.IndexedAt = time.Now()
	if err := s.db.Store().Upsert(cp.FilePath, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", cp.FilePath, err)
	}
	return nil
}

// DeleteJob removes every indexed line for one job.
func (s *LogStore) DeleteJob(jobID string) error {
	err := s.db.Store().DeleteMatching(&models.TransferLogEntry{},
		badgerhold.Where("JobID").Eq(jobID).Index("JobID"))
	if err != nil {
		return fmt.Errorf("failed to delete indexed logs for %s: %w", jobID, err)
	}
	return nil
}
