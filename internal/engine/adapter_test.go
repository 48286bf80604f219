package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

type nopPostTransfer struct{}

func (nopPostTransfer) Run(job *models.Job, mutate func(func(*models.Progress))) {}

func TestSetPostTransfer_ArmsDeletionBlock(t *testing.T) {
	job := models.NewJob("move", "/src", "/dst", models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter: true,
		DeletionConfirmed: true,
		DeletionMode:      models.DeletionVerifyThenDelete,
	})
	a := &Adapter{job: job.Clone()}
	a.progress = job.Progress.Clone()

	a.SetPostTransfer(nopPostTransfer{})

	p := a.Progress()
	require.NotNil(t, p.Deletion, "deletion block must exist before the transfer finishes")
	assert.True(t, p.Deletion.Enabled)
	assert.Equal(t, models.DeletionVerifyThenDelete, p.Deletion.Mode)
	assert.Equal(t, models.DeletionPhaseTransfer, p.Deletion.Phase)
}

func TestSetPostTransfer_UnarmedJobStaysBare(t *testing.T) {
	job := models.NewJob("copy", "/src", "/dst", models.JobTypeLocalCopy, models.JobSettings{})
	a := &Adapter{job: job.Clone()}
	a.progress = job.Progress.Clone()

	a.SetPostTransfer(nopPostTransfer{})

	assert.Nil(t, a.Progress().Deletion)
}
