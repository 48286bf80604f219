// -----------------------------------------------------------------------
// Error Event Log - append-only, indexed, queryable catalog of errors
// -----------------------------------------------------------------------

package storage

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// ErrorLog stores error events in the badger database, indexed by
// timestamp, severity, component, job id and resolution state.
type ErrorLog struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewErrorLog builds the error log on an open connection.
func NewErrorLog(db *BadgerDB, logger arbor.ILogger) *ErrorLog {
	return &ErrorLog{db: db, logger: logger}
}

// Record appends one event. Storage failures are logged, never
// propagated; the log must not take its producers down with it. Also
// satisfies recovery.Recorder.
func (l *ErrorLog) Record(event *models.ErrorEvent) {
	if event == nil {
		return
	}
	if err := l.db.Store().Insert(event.ID, event); err != nil {
		l.logger.Warn().Str("event_id", event.ID).Err(err).Msg("Failed to store error event")
	}
}

// Get returns one event by id.
func (l *ErrorLog) Get(id string) (*models.ErrorEvent, error) {
	var event models.ErrorEvent
	if err := l.db.Store().Get(id, &event); err != nil {
		return nil, fmt.Errorf("error event %s: %w", id, err)
	}
	return &event, nil
}

// Recent returns the newest events. resolved=nil returns both resolved
// and unresolved events.
func (l *ErrorLog) Recent(limit int, resolved *bool) ([]*models.ErrorEvent, error) {
	query := badgerhold.Where("Timestamp").Ge(time.Time{})
	if resolved != nil {
		query = query.And("Resolved").Eq(*resolved)
	}
	return l.find(query.SortBy("Timestamp").Reverse().Limit(limit))
}

// ByJob returns the newest events attached to one job.
func (l *ErrorLog) ByJob(jobID string, limit int) ([]*models.ErrorEvent, error) {
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		SortBy("Timestamp").Reverse().Limit(limit)
	return l.find(query)
}

// BySeverity returns the newest events of one severity.
func (l *ErrorLog) BySeverity(severity models.Severity, limit int) ([]*models.ErrorEvent, error) {
	query := badgerhold.Where("Severity").Eq(severity).Index("Severity").
		SortBy("Timestamp").Reverse().Limit(limit)
	return l.find(query)
}

func (l *ErrorLog) find(query *badgerhold.Query) ([]*models.ErrorEvent, error) {
	var events []*models.ErrorEvent
	if err := l.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query error events: %w", err)
	}
	return events, nil
}

// MarkResolved flags one event resolved.
func (l *ErrorLog) MarkResolved(id string) error {
	var event models.ErrorEvent
	if err := l.db.Store().Get(id, &event); err != nil {
		return fmt.Errorf("error event %s: %w", id, err)
	}
	event.Resolved = true
	event.ResolvedAt = time.Now()
	if err := l.db.Store().Update(id, &event); err != nil {
		return fmt.Errorf("failed to resolve event %s: %w", id, err)
	}
	return nil
}

// Stats summarizes the whole log.
func (l *ErrorLog) Stats() (*models.ErrorStats, error) {
	events, err := l.find(badgerhold.Where("Timestamp").Ge(time.Time{}))
	if err != nil {
		return nil, err
	}

	stats := &models.ErrorStats{BySeverity: make(map[models.Severity]int)}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, event := range events {
		stats.Total++
		if event.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
		stats.BySeverity[event.Severity]++
		if event.Timestamp.After(cutoff) {
			stats.Recent24h++
		}
	}
	return stats, nil
}

// DeleteOld removes events older than the given age. With resolvedOnly
// set, unresolved events are kept regardless of age.
func (l *ErrorLog) DeleteOld(age time.Duration, resolvedOnly bool) (int, error) {
	cutoff := time.Now().Add(-age)
	query := badgerhold.Where("Timestamp").Lt(cutoff)
	if resolvedOnly {
		query = query.And("Resolved").Eq(true)
	}

	old, err := l.find(query)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, event := range old {
		if err := l.db.Store().Delete(event.ID, &models.ErrorEvent{}); err != nil {
			l.logger.Warn().Str("event_id", event.ID).Err(err).Msg("Failed to delete old error event")
			continue
		}
		deleted++
	}
	return deleted, nil
}
