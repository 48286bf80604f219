package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

func newTestErrorLog(t *testing.T) *ErrorLog {
	t.Helper()
	db, err := NewBadgerDB(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewErrorLog(db, arbor.NewLogger())
}

func TestErrorLog_RecordAndGet(t *testing.T) {
	log := newTestErrorLog(t)

	event := models.ErrorEventFromError(errors.New("disk full"), models.SeverityHigh, "jobstore", "write failed")
	event.JobID = "job-1"
	log.Record(event)

	got, err := log.Get(event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, got.Severity)
	assert.Equal(t, "jobstore", got.Component)
	assert.Equal(t, "*errors.errorString", got.ErrorType)
	assert.NotEmpty(t, got.StackTrace)
	assert.False(t, got.Resolved)
}

func TestErrorLog_RecentOrderAndFilter(t *testing.T) {
	log := newTestErrorLog(t)

	for i := 0; i < 5; i++ {
		event := models.NewErrorEvent(models.SeverityLow, "monitor", "cycle error")
		event.Timestamp = time.Now().Add(time.Duration(i) * time.Minute)
		if i == 4 {
			event.Resolved = true
		}
		log.Record(event)
	}

	recent, err := log.Recent(3, nil)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for i := 1; i < len(recent); i++ {
		assert.True(t, !recent[i].Timestamp.After(recent[i-1].Timestamp), "newest first")
	}

	unresolved := false
	pending, err := log.Recent(10, &unresolved)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestErrorLog_ByJobAndBySeverity(t *testing.T) {
	log := newTestErrorLog(t)

	a := models.NewErrorEvent(models.SeverityMedium, "engine", "retry exhausted")
	a.JobID = "job-a"
	log.Record(a)
	b := models.NewErrorEvent(models.SeverityCritical, "jobstore", "both files corrupt")
	log.Record(b)

	byJob, err := log.ByJob("job-a", 10)
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.Equal(t, a.ID, byJob[0].ID)

	crit, err := log.BySeverity(models.SeverityCritical, 10)
	require.NoError(t, err)
	require.Len(t, crit, 1)
	assert.Equal(t, b.ID, crit[0].ID)
}

func TestErrorLog_MarkResolvedAndStats(t *testing.T) {
	log := newTestErrorLog(t)

	e1 := models.NewErrorEvent(models.SeverityHigh, "monitor", "loop panic")
	e2 := models.NewErrorEvent(models.SeverityLow, "indexer", "file busy")
	log.Record(e1)
	log.Record(e2)

	require.NoError(t, log.MarkResolved(e1.ID))

	stats, err := log.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 1, stats.BySeverity[models.SeverityHigh])
	assert.Equal(t, 2, stats.Recent24h)
}

func TestErrorLog_DeleteOldKeepsUnresolved(t *testing.T) {
	log := newTestErrorLog(t)

	old := models.NewErrorEvent(models.SeverityLow, "monitor", "stale resolved")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	old.Resolved = true
	log.Record(old)

	oldUnresolved := models.NewErrorEvent(models.SeverityLow, "monitor", "stale unresolved")
	oldUnresolved.Timestamp = time.Now().Add(-48 * time.Hour)
	log.Record(oldUnresolved)

	fresh := models.NewErrorEvent(models.SeverityLow, "monitor", "fresh")
	log.Record(fresh)

	deleted, err := log.DeleteOld(24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	stats, err := log.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}
