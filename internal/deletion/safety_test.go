package deletion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

func TestPreflight_MissingSource(t *testing.T) {
	job := models.NewJob("test", filepath.Join(t.TempDir(), "missing"), t.TempDir(),
		models.JobTypeLocalCopy, models.JobSettings{})

	_, err := Preflight(job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPreflight_EmptySource(t *testing.T) {
	job := models.NewJob("test", t.TempDir(), t.TempDir(),
		models.JobTypeLocalCopy, models.JobSettings{})

	_, err := Preflight(job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestPreflight_SamePath(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("data"), 0644))

	job := models.NewJob("test", src, src, models.JobTypeLocalCopy, models.JobSettings{})

	_, err := Preflight(job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "same path")
}

func TestPreflight_LocalHappyPath(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("12345678"), 0644))

	job := models.NewJob("test", src, t.TempDir(), models.JobTypeLocalCopy, models.JobSettings{})

	result, err := Preflight(job)
	require.NoError(t, err)
	assert.Equal(t, int64(8), result.SourceBytes)
	assert.Equal(t, 1, result.SourceFiles)
	assert.Empty(t, result.Warning)
}

func TestPreflight_CloudDestWarns(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("data"), 0644))

	job := models.NewJob("test", src, "remote:backup/dir", models.JobTypeCloudCopy, models.JobSettings{})

	result, err := Preflight(job)
	require.NoError(t, err)
	assert.Contains(t, result.Warning, "free-space check skipped")
}

func TestIsCloudPath(t *testing.T) {
	assert.True(t, models.IsCloudPath("gdrive:backups"))
	assert.True(t, models.IsCloudPath("b2:bucket/path"))
	assert.False(t, models.IsCloudPath("/home/user/backups"))
	assert.False(t, models.IsCloudPath(`C:\Users\me`))
	assert.False(t, models.IsCloudPath("C:/Users/me"))
	assert.False(t, models.IsCloudPath(":weird"))
	assert.False(t, models.IsCloudPath("plain"))
}
