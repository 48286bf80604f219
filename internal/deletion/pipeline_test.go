package deletion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

func makeSourceTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestDeleteSource_RemovesFilesAndCounts(t *testing.T) {
	src := makeSourceTree(t, map[string]string{
		"a.txt":        "hello",
		"sub/b.txt":    "world!",
		"sub/deep/c.t": "x",
	})
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	p := NewPipeline(auditPath, testLogger())

	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter: true,
		DeletionConfirmed: true,
		DeletionMode:      models.DeletionVerifyThenDelete,
	})

	var progress models.Progress
	mutate := func(fn func(*models.Progress)) { fn(&progress) }

	files, bytes, errCount := p.deleteSource(job, mutate)

	assert.Equal(t, int64(3), files)
	assert.Equal(t, int64(12), bytes)
	assert.Equal(t, 0, errCount)
	require.NotNil(t, progress.Deletion)
	assert.Equal(t, int64(3), progress.Deletion.FilesDeleted)
	assert.Equal(t, int64(12), progress.Deletion.BytesDeleted)

	// Files gone, directories still present until prune
	_, err := os.Stat(filepath.Join(src, "a.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(src, "sub"))
	assert.NoError(t, err)

	// Audit log has one DELETED entry per file
	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "DELETED "))
}

func TestPruneEmptyDirs_BottomUpKeepsRoot(t *testing.T) {
	src := makeSourceTree(t, map[string]string{
		"keep/file.txt": "stays",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty/nested/deep"), 0755))

	pruneEmptyDirs(src)

	_, err := os.Stat(filepath.Join(src, "empty"))
	assert.True(t, os.IsNotExist(err), "empty tree should be pruned")
	_, err = os.Stat(filepath.Join(src, "keep/file.txt"))
	assert.NoError(t, err, "non-empty directories must survive")
	_, err = os.Stat(src)
	assert.NoError(t, err, "root itself is never removed")
}

func TestRun_SkipsWhenNotArmed(t *testing.T) {
	src := makeSourceTree(t, map[string]string{"a.txt": "data"})
	p := NewPipeline(filepath.Join(t.TempDir(), "audit.log"), testLogger())

	// delete_source_after set but not confirmed: nothing may happen
	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter: true,
		DeletionConfirmed: false,
		DeletionMode:      models.DeletionVerifyThenDelete,
	})

	var progress models.Progress
	p.Run(job, func(fn func(*models.Progress)) { fn(&progress) })

	_, err := os.Stat(filepath.Join(src, "a.txt"))
	assert.NoError(t, err, "unconfirmed deletion must never delete")
	assert.Nil(t, progress.Deletion)
}

func TestRun_SkipThisRunSuppressesDeletion(t *testing.T) {
	src := makeSourceTree(t, map[string]string{"a.txt": "data"})
	p := NewPipeline(filepath.Join(t.TempDir(), "audit.log"), testLogger())

	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter:   true,
		DeletionConfirmed:   true,
		SkipDeletionThisRun: true,
		DeletionMode:        models.DeletionVerifyThenDelete,
	})

	var progress models.Progress
	p.Run(job, func(fn func(*models.Progress)) { fn(&progress) })

	_, err := os.Stat(filepath.Join(src, "a.txt"))
	assert.NoError(t, err)
}

func TestRun_PerFilePhaseProgression(t *testing.T) {
	src := makeSourceTree(t, map[string]string{})
	require.NoError(t, os.MkdirAll(filepath.Join(src, "emptied/nested"), 0755))
	p := NewPipeline(filepath.Join(t.TempDir(), "audit.log"), testLogger())

	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter: true,
		DeletionConfirmed: true,
		DeletionMode:      models.DeletionPerFile,
	})

	// The engine arms the block at phase transfer before the pipeline runs.
	progress := models.Progress{Deletion: &models.Deletion{
		Enabled: true,
		Mode:    models.DeletionPerFile,
		Phase:   models.DeletionPhaseTransfer,
	}}
	var phases []models.DeletionPhase
	p.Run(job, func(fn func(*models.Progress)) {
		fn(&progress)
		phases = append(phases, progress.Deletion.Phase)
	})

	require.NotEmpty(t, phases)
	assert.Equal(t, models.DeletionPhaseDeleting, phases[0])
	assert.Equal(t, models.DeletionPhaseCompleted, phases[len(phases)-1])
	assert.Equal(t, models.DeletionPhaseCompleted, progress.Deletion.Phase)
	_, err := os.Stat(filepath.Join(src, "emptied"))
	assert.True(t, os.IsNotExist(err), "emptied directories should be pruned")
}

func TestRun_FailedVerificationAuditedAndAborts(t *testing.T) {
	// Source has files the empty destination cannot match, so the
	// verification fails whether or not rsync is installed.
	src := makeSourceTree(t, map[string]string{"a.txt": "data", "sub/b.txt": "more"})
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	p := NewPipeline(auditPath, testLogger())

	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{
		DeleteSourceAfter: true,
		DeletionConfirmed: true,
		DeletionMode:      models.DeletionVerifyThenDelete,
	})

	var progress models.Progress
	p.Run(job, func(fn func(*models.Progress)) { fn(&progress) })

	require.NotNil(t, progress.Deletion)
	assert.Equal(t, models.DeletionPhaseFailed, progress.Deletion.Phase)
	require.NotNil(t, progress.Verification)
	assert.Equal(t, models.VerifyFailed, progress.Verification.Result)

	_, err := os.Stat(filepath.Join(src, "a.txt"))
	assert.NoError(t, err, "failed verification must leave the source intact")

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "VERIFICATION STARTED")
	assert.Contains(t, text, "VERIFICATION FAILED")
	assert.NotContains(t, text, "START mode=", "no deletion run may be recorded after a failed verify")
	assert.NotContains(t, text, "DELETED ")
}

func TestMeasureTree(t *testing.T) {
	src := makeSourceTree(t, map[string]string{
		"a.txt":     "12345",
		"sub/b.txt": "123",
	})
	bytes, files, err := measureTree(src)
	require.NoError(t, err)
	assert.Equal(t, int64(8), bytes)
	assert.Equal(t, 2, files)
}

func TestAuditLog_EntryShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewAuditLog(path)

	log.VerificationStarted(true)
	log.VerificationResult(true, 40, 0)
	log.Start(models.DeletionVerifyThenDelete, 42)
	log.Deleted("/src/a.txt", 1024, "")
	log.End(1, 1024, 0)
	log.VerificationResult(false, 10, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "VERIFICATION STARTED checksum=true")
	assert.Contains(t, text, "VERIFICATION PASSED files_checked=40 mismatches=0")
	assert.Contains(t, text, "START mode=verify_then_delete estimated_files=42")
	assert.Contains(t, text, "DELETED /src/a.txt")
	assert.Contains(t, text, "END total_files=1")
	assert.Contains(t, text, "VERIFICATION FAILED files_checked=10 mismatches=2")
}
