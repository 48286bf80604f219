// -----------------------------------------------------------------------
// Backup Job - Durable job record, progress snapshot, per-job settings
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType selects the transfer engine driving a job.
type JobType string

const (
	// JobTypeLocalCopy transfers with rsync between local/SSH paths.
	JobTypeLocalCopy JobType = "rsync"
	// JobTypeCloudCopy transfers with rclone to a configured remote.
	JobTypeCloudCopy JobType = "rclone"
)

// Valid returns true for a recognized job type.
func (t JobType) Valid() bool {
	return t == JobTypeLocalCopy || t == JobTypeCloudCopy
}

// Tool returns the binary name the type maps to.
func (t JobType) Tool() string {
	return string(t)
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid returns true for a recognized status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusPaused, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true once a job can no longer make progress without
// a restart.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DeletionMode selects how source files are removed after transfer.
type DeletionMode string

const (
	// DeletionPerFile lets the transfer tool delete each source file as
	// it is successfully transferred.
	DeletionPerFile DeletionMode = "per_file"
	// DeletionVerifyThenDelete verifies the whole backup first and only
	// then deletes the source.
	DeletionVerifyThenDelete DeletionMode = "verify_then_delete"
)

func (m DeletionMode) Valid() bool {
	return m == DeletionPerFile || m == DeletionVerifyThenDelete
}

// DeletionPhase tracks the post-transfer pipeline position.
type DeletionPhase string

const (
	DeletionPhaseNone      DeletionPhase = "none"
	DeletionPhaseTransfer  DeletionPhase = "transfer"
	DeletionPhaseVerifying DeletionPhase = "verifying"
	DeletionPhaseDeleting  DeletionPhase = "deleting"
	DeletionPhaseCompleted DeletionPhase = "completed"
	DeletionPhaseFailed    DeletionPhase = "failed"
)

// VerifyResult is a tri-state verification outcome.
type VerifyResult string

const (
	VerifyUnknown VerifyResult = "unknown"
	VerifyPassed  VerifyResult = "passed"
	VerifyFailed  VerifyResult = "failed"
)

// Verification records the outcome of the post-transfer integrity check.
type Verification struct {
	Enabled      bool         `yaml:"enabled" json:"enabled"`
	Result       VerifyResult `yaml:"result" json:"result"`
	FilesChecked int          `yaml:"files_checked" json:"files_checked"`
	Mismatches   int          `yaml:"mismatches" json:"mismatches"`
}

// Deletion tracks the live state of the source-deletion pipeline.
type Deletion struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Mode         DeletionMode  `yaml:"mode,omitempty" json:"mode,omitempty"`
	Phase        DeletionPhase `yaml:"phase" json:"phase"`
	FilesDeleted int64         `yaml:"files_deleted" json:"files_deleted"`
	BytesDeleted int64         `yaml:"bytes_deleted" json:"bytes_deleted"`
	Errors       int           `yaml:"errors" json:"errors"`
}

// Progress is the engine's progress snapshot. Engines own their copy and
// release it by value; a zero or missing field in a parsed line never
// clears a previously populated one.
type Progress struct {
	BytesTransferred int64         `yaml:"bytes_transferred" json:"bytes_transferred"`
	TotalBytes       int64         `yaml:"total_bytes" json:"total_bytes"`
	Percent          int           `yaml:"percent" json:"percent"`
	SpeedBytes       int64         `yaml:"speed_bytes" json:"speed_bytes"`
	ETASeconds       int64         `yaml:"eta_seconds" json:"eta_seconds"`
	StatusDetail     string        `yaml:"status_detail,omitempty" json:"status_detail,omitempty"`
	Verification     *Verification `yaml:"verification,omitempty" json:"verification,omitempty"`
	Deletion         *Deletion     `yaml:"deletion,omitempty" json:"deletion,omitempty"`
}

// DisplayPercent caps the percent for presentation. Total-bytes
// recalculation can transiently push the raw value past 100.
func (p *Progress) DisplayPercent() int {
	if p.Percent > 100 {
		return 100
	}
	if p.Percent < 0 {
		return 0
	}
	return p.Percent
}

// Clone returns a deep copy of the snapshot.
func (p *Progress) Clone() Progress {
	out := *p
	if p.Verification != nil {
		v := *p.Verification
		out.Verification = &v
	}
	if p.Deletion != nil {
		d := *p.Deletion
		out.Deletion = &d
	}
	return out
}

// JobSettings holds the recognized per-job options. Unrecognized keys in
// the stored document are rejected on load rather than silently kept.
type JobSettings struct {
	// BandwidthLimit caps transfer rate in KB/s. Zero means unlimited.
	BandwidthLimit int `yaml:"bandwidth_limit" json:"bandwidth_limit"`
	// Checksum requests checksum-mode comparison from the tool.
	Checksum bool `yaml:"checksum" json:"checksum"`
	// DeleteSourceAfter enables the deletion pipeline.
	DeleteSourceAfter bool `yaml:"delete_source_after" json:"delete_source_after"`
	// DeletionMode selects PerFile or VerifyThenDelete.
	DeletionMode DeletionMode `yaml:"deletion_mode,omitempty" json:"deletion_mode,omitempty"`
	// DeletionConfirmed is the operator's explicit gate on deletion.
	DeletionConfirmed bool `yaml:"deletion_confirmed" json:"deletion_confirmed"`
	// SkipDeletionThisRun suppresses deletion for the next run only.
	SkipDeletionThisRun bool `yaml:"skip_deletion_this_run" json:"skip_deletion_this_run"`
}

// ShouldDelete reports whether the deletion pipeline is armed for the
// next run. All three gates must agree.
func (s *JobSettings) ShouldDelete() bool {
	return s.DeleteSourceAfter && s.DeletionConfirmed && !s.SkipDeletionThisRun
}

// Job is the durable record the store owns. The supervisor holds a
// short-lived in-memory copy during updates.
type Job struct {
	ID        string      `yaml:"id" json:"id"`
	Name      string      `yaml:"name" json:"name"`
	Source    string      `yaml:"source" json:"source"`
	Dest      string      `yaml:"dest" json:"dest"`
	Type      JobType     `yaml:"type" json:"type"`
	Status    JobStatus   `yaml:"status" json:"status"`
	Progress  Progress    `yaml:"progress" json:"progress"`
	Settings  JobSettings `yaml:"settings" json:"settings"`
	CreatedAt time.Time   `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time   `yaml:"updated_at" json:"updated_at"`

	// Version increases on every progress or status mutation. A write
	// carrying a lower version than the stored record is ignored.
	Version int64 `yaml:"version" json:"version"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(name, source, dest string, jobType JobType, settings JobSettings) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    source,
		Dest:      dest,
		Type:      jobType,
		Status:    JobStatusPending,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   0,
	}
}

// Touch bumps the version counter and the update timestamp. Call on
// every progress or status mutation before persisting.
func (j *Job) Touch() {
	j.Version++
	j.UpdatedAt = time.Now()
}

// Clone returns a deep copy safe to hand across goroutines.
func (j *Job) Clone() *Job {
	out := *j
	out.Progress = j.Progress.Clone()
	return &out
}

// IsCloudPath reports whether a path is an rclone remote spec of the
// shape name:path. A Windows drive letter or an absolute path does not
// count.
func IsCloudPath(path string) bool {
	idx := strings.Index(path, ":")
	if idx <= 0 {
		return false
	}
	// C:\... or C:/... is a drive, not a remote
	if idx == 1 && len(path) > 2 && (path[2] == '\\' || path[2] == '/') {
		return false
	}
	return true
}

// Validate checks the record's structural invariants.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job name must not be empty")
	}
	if strings.TrimSpace(j.Source) == "" {
		return fmt.Errorf("job source must not be empty")
	}
	if strings.TrimSpace(j.Dest) == "" {
		return fmt.Errorf("job dest must not be empty")
	}
	if !j.Type.Valid() {
		return fmt.Errorf("unknown job type %q", j.Type)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("unknown job status %q", j.Status)
	}
	if j.Settings.DeleteSourceAfter && j.Settings.DeletionMode != "" && !j.Settings.DeletionMode.Valid() {
		return fmt.Errorf("unknown deletion mode %q", j.Settings.DeletionMode)
	}
	if j.Type == JobTypeCloudCopy && !IsCloudPath(j.Dest) && !IsCloudPath(j.Source) {
		return fmt.Errorf("cloud job requires a remote spec of the form name:path")
	}
	return nil
}
