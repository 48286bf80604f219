// -----------------------------------------------------------------------
// Deletion Pipeline - verify-then-delete and per-file cleanup phases
// run after a successful transfer
// -----------------------------------------------------------------------

package deletion

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Pipeline drives one deletion run for one job. It implements the
// engine's post-transfer hook and publishes its state through the
// progress mutate callback.
type Pipeline struct {
	audit  *AuditLog
	logger arbor.ILogger
}

// NewPipeline builds a pipeline writing its audit trail to auditPath.
func NewPipeline(auditPath string, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		audit:  NewAuditLog(auditPath),
		logger: logger,
	}
}

// Run executes the configured deletion mode. Any phase failure leaves
// deletion.phase at failed and whatever remains of the source intact;
// the transfer itself stays successful.
func (p *Pipeline) Run(job *models.Job, mutate func(func(*models.Progress))) {
	if !job.Settings.ShouldDelete() {
		return
	}

	setPhase := func(phase models.DeletionPhase) {
		mutate(func(pr *models.Progress) {
			if pr.Deletion == nil {
				pr.Deletion = &models.Deletion{Enabled: true, Mode: job.Settings.DeletionMode}
			}
			pr.Deletion.Phase = phase
		})
	}

	switch job.Settings.DeletionMode {
	case models.DeletionPerFile:
		p.runPerFile(job, mutate, setPhase)
	case models.DeletionVerifyThenDelete:
		p.runVerifyThenDelete(job, mutate, setPhase)
	default:
		p.logger.Warn().
			Str("job_id", job.ID).
			Str("mode", string(job.Settings.DeletionMode)).
			Msg("Deletion armed with unknown mode, skipping")
	}
}

// runPerFile finishes a transfer where the tool already deleted each
// source file: prune emptied directories and write the summary.
func (p *Pipeline) runPerFile(job *models.Job, mutate func(func(*models.Progress)), setPhase func(models.DeletionPhase)) {
	setPhase(models.DeletionPhaseDeleting)
	p.audit.Start(models.DeletionPerFile, 0)

	if !models.IsCloudPath(job.Source) {
		pruneEmptyDirs(job.Source)
	}

	var files, bytes int64
	mutate(func(pr *models.Progress) {
		if pr.Deletion != nil {
			files = pr.Deletion.FilesDeleted
			bytes = pr.Deletion.BytesDeleted
		}
	})
	p.audit.End(files, bytes, 0)
	setPhase(models.DeletionPhaseCompleted)
	p.logger.Info().Str("job_id", job.ID).Msg("Per-file deletion finished, empty directories pruned")
}

// runVerifyThenDelete drives the three-phase pipeline: verify the
// backup, delete the source only on a pass, then prune empty dirs.
func (p *Pipeline) runVerifyThenDelete(job *models.Job, mutate func(func(*models.Progress)), setPhase func(models.DeletionPhase)) {
	setPhase(models.DeletionPhaseVerifying)
	p.audit.VerificationStarted(job.Settings.Checksum)

	passed, checked, mismatches := p.verify(job)
	p.audit.VerificationResult(passed, checked, mismatches)
	mutate(func(pr *models.Progress) {
		v := &models.Verification{
			Enabled:      true,
			FilesChecked: checked,
			Mismatches:   mismatches,
		}
		if passed {
			v.Result = models.VerifyPassed
		} else {
			v.Result = models.VerifyFailed
		}
		pr.Verification = v
	})

	if !passed {
		setPhase(models.DeletionPhaseFailed)
		p.logger.Warn().
			Str("job_id", job.ID).
			Int("mismatches", mismatches).
			Msg("Verification failed, source left untouched")
		return
	}

	setPhase(models.DeletionPhaseDeleting)

	_, estimated, _ := measureTree(job.Source)
	p.audit.Start(models.DeletionVerifyThenDelete, estimated)

	files, bytes, errCount := p.deleteSource(job, mutate)
	p.audit.End(files, bytes, errCount)

	if errCount > 0 && files == 0 {
		setPhase(models.DeletionPhaseFailed)
		return
	}

	if !models.IsCloudPath(job.Source) {
		pruneEmptyDirs(job.Source)
	}
	setPhase(models.DeletionPhaseCompleted)
	p.logger.Info().
		Str("job_id", job.ID).
		Int64("files_deleted", files).
		Int64("bytes_deleted", bytes).
		Int("errors", errCount).
		Msg("Verify-then-delete finished")
}

// verify compares source against destination with the transfer tool.
// Timeouts and invocation failures count as a failed verification.
// checked is approximated by a fresh walk of the source tree; rclone
// check output is not parsed, so cloud runs report zero checked files.
func (p *Pipeline) verify(job *models.Job) (passed bool, checked int, mismatches int) {
	if job.Type == models.JobTypeCloudCopy {
		args := []string{"check", job.Source, job.Dest}
		if job.Settings.Checksum {
			args = append(args, "--checksum")
		}
		err := exec.Command("rclone", args...).Run()
		return err == nil, 0, 0
	}

	// rsync dry-run diff: any emitted file path is a mismatch.
	args := []string{"-rn", "--out-format=%n"}
	if job.Settings.Checksum {
		args = []string{"-rcn", "--out-format=%n"}
	}
	args = append(args, trailingSlash(job.Source), trailingSlash(job.Dest))
	out, err := exec.Command("rsync", args...).Output()
	if err != nil {
		return false, 0, 0
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "/") || line == "./" {
			continue
		}
		mismatches++
	}
	_, checked, _ = measureTree(job.Source)
	return mismatches == 0, checked, mismatches
}

// deleteSource removes every file under the source, recording each one
// in the audit log and accumulating live counters in the progress
// snapshot. Permission errors are counted, never fatal.
func (p *Pipeline) deleteSource(job *models.Job, mutate func(func(*models.Progress))) (files, bytes int64, errCount int) {
	if models.IsCloudPath(job.Source) {
		if err := exec.Command("rclone", "delete", job.Source).Run(); err != nil {
			p.logger.Error().Str("job_id", job.ID).Err(err).Msg("rclone delete failed")
			return 0, 0, 1
		}
		p.audit.Deleted(job.Source, 0, "cloud delete-all")
		return 1, 0, 0
	}

	filepath.WalkDir(job.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errCount++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		if err := os.Remove(path); err != nil {
			errCount++
			p.logger.Warn().Str("path", path).Err(err).Msg("Failed to delete source file")
			return nil
		}
		files++
		bytes += size
		p.audit.Deleted(path, size, "")
		mutate(func(pr *models.Progress) {
			if pr.Deletion == nil {
				pr.Deletion = &models.Deletion{Enabled: true, Mode: job.Settings.DeletionMode}
			}
			pr.Deletion.FilesDeleted = files
			pr.Deletion.BytesDeleted = bytes
			pr.Deletion.Errors = errCount
		})
		return nil
	})
	return files, bytes, errCount
}

// pruneEmptyDirs removes emptied directories bottom-up, keeping the
// root itself.
func pruneEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	// Deepest first so parents empty out as children go.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(os.PathSeparator)) > strings.Count(dirs[j], string(os.PathSeparator))
	})
	for _, dir := range dirs {
		// Remove fails on non-empty directories, which is the point.
		os.Remove(dir)
	}
}

func trailingSlash(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}
