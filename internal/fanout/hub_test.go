package fanout

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

type fakeSubscriber struct {
	received [][]byte
	fail     bool
}

func (f *fakeSubscriber) Send(data []byte) error {
	if f.fail {
		return errors.New("connection gone")
	}
	f.received = append(f.received, data)
	return nil
}

func sampleJob() *models.Job {
	job := models.NewJob("photos", "/src", "/dst", models.JobTypeLocalCopy, models.JobSettings{})
	job.Status = models.JobStatusRunning
	job.Progress.Percent = 40
	job.Progress.BytesTransferred = 400
	job.Progress.TotalBytes = 1000
	return job
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 0)
	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	hub.Attach(a)
	hub.Attach(b)

	hub.BroadcastUpdate(models.NewJobUpdate(sampleJob(), false))

	require.Len(t, a.received, 1)
	require.Len(t, b.received, 1)

	var decoded models.JobUpdateMessage
	require.NoError(t, json.Unmarshal(a.received[0], &decoded))
	assert.Equal(t, models.MessageTypeJobUpdate, decoded.Type)
	assert.Equal(t, 40, decoded.Percent)
	assert.Equal(t, models.JobStatusRunning, decoded.Status)
}

func TestHub_EvictsDeadSubscribers(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 0)
	alive := &fakeSubscriber{}
	dead := &fakeSubscriber{fail: true}
	hub.Attach(alive)
	hub.Attach(dead)
	require.Equal(t, 2, hub.Count())

	hub.BroadcastUpdate(models.NewJobUpdate(sampleJob(), false))

	assert.Equal(t, 1, hub.Count())
	assert.Len(t, alive.received, 1)

	// Subsequent broadcasts only reach the survivor
	hub.BroadcastUpdate(models.NewJobUpdate(sampleJob(), true))
	assert.Len(t, alive.received, 2)
}

func TestHub_FinalUpdateShape(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 0)
	sub := &fakeSubscriber{}
	hub.Attach(sub)

	job := sampleJob()
	job.Status = models.JobStatusCompleted
	job.Progress.Percent = 100
	job.Progress.Deletion = &models.Deletion{
		Enabled: true,
		Mode:    models.DeletionVerifyThenDelete,
		Phase:   models.DeletionPhaseCompleted,
	}
	hub.BroadcastUpdate(models.NewJobUpdate(job, true))

	var decoded models.JobUpdateMessage
	require.NoError(t, json.Unmarshal(sub.received[0], &decoded))
	assert.Equal(t, models.MessageTypeJobFinalUpdate, decoded.Type)
	assert.Equal(t, 100, decoded.Percent)
	require.NotNil(t, decoded.Deletion)
	assert.Equal(t, models.DeletionPhaseCompleted, decoded.Deletion.Phase)
}

func TestHub_PercentCappedInMessages(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 0)
	sub := &fakeSubscriber{}
	hub.Attach(sub)

	job := sampleJob()
	// Total recalculation can transiently push the raw percent past 100
	job.Progress.Percent = 101
	hub.BroadcastUpdate(models.NewJobUpdate(job, false))

	var decoded models.JobUpdateMessage
	require.NoError(t, json.Unmarshal(sub.received[0], &decoded))
	assert.Equal(t, 100, decoded.Percent)
}

func TestHub_NotificationThrottle(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 100*time.Millisecond)
	sub := &fakeSubscriber{}
	hub.Attach(sub)

	hub.Notify(models.NotifyWarning, "degraded", "")
	hub.Notify(models.NotifyWarning, "degraded again", "")

	assert.Len(t, sub.received, 1, "second notification inside the window is dropped")

	time.Sleep(120 * time.Millisecond)
	hub.Notify(models.NotifyInfo, "recovered", "")
	assert.Len(t, sub.received, 2)
}

func TestHub_DetachStopsDelivery(t *testing.T) {
	hub := NewHub(arbor.NewLogger(), 0)
	sub := &fakeSubscriber{}
	hub.Attach(sub)
	hub.Detach(sub)

	hub.BroadcastUpdate(models.NewJobUpdate(sampleJob(), false))
	assert.Empty(t, sub.received)
}
