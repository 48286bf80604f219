package common

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory location.
const DataDirEnv = "BACKUP_MANAGER_DATA_DIR"

// Paths resolves every on-disk location the service uses. All path
// construction goes through here; collaborators never build paths
// themselves.
type Paths struct {
	dataDir string
}

// ResolvePaths determines the data directory (environment override,
// otherwise ~/backup-manager) and creates it.
func ResolvePaths() (*Paths, error) {
	dir := os.Getenv(DataDirEnv)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, "backup-manager")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Paths{dataDir: abs}, nil
}

// NewPaths builds a Paths rooted at an explicit directory. Used by tests.
func NewPaths(dir string) *Paths {
	return &Paths{dataDir: dir}
}

// DataDir returns the resolved data directory.
func (p *Paths) DataDir() string {
	return p.dataDir
}

// JobsFile returns the path of the job store document.
func (p *Paths) JobsFile() string {
	return filepath.Join(p.dataDir, "jobs.yaml")
}

// SettingsFile returns the path of the process-wide settings file.
func (p *Paths) SettingsFile() string {
	return filepath.Join(p.dataDir, "settings.yaml")
}

// LogsDir returns the per-job log directory, creating it on first use.
func (p *Paths) LogsDir() (string, error) {
	dir := filepath.Join(p.dataDir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return dir, nil
}

// TransferLog returns the transfer log path for one job, e.g.
// logs/rsync_<job_id>.log.
func (p *Paths) TransferLog(tool, jobID string) (string, error) {
	dir, err := p.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", tool, jobID)), nil
}

// DeletionLog returns the deletion audit log path for one job.
func (p *Paths) DeletionLog(jobID string) (string, error) {
	dir, err := p.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("deletions_%s.log", jobID)), nil
}

// EventsDB returns the directory of the badger store holding error
// events and indexed logs.
func (p *Paths) EventsDB() (string, error) {
	dir := filepath.Join(p.dataDir, "data", "logs.db")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create events database directory: %w", err)
	}
	return dir, nil
}
