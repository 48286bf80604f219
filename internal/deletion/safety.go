// -----------------------------------------------------------------------
// Pre-flight Safety - checks that must pass before a deletion-armed job
// is allowed to start
// -----------------------------------------------------------------------

package deletion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// spaceMarginNumerator / spaceMarginDenominator encode the 1.10x free
// space margin required at a local destination.
const (
	spaceMarginNumerator   = 11
	spaceMarginDenominator = 10
)

// PreflightResult carries the outcome of the safety checks. Warning is
// set for conditions that do not block the start (cloud destinations
// skip the space check).
type PreflightResult struct {
	SourceBytes int64
	SourceFiles int
	Warning     string
}

// Preflight validates that deleting the source after this job's
// transfer would be safe. Returns an error for any blocking condition.
func Preflight(job *models.Job) (*PreflightResult, error) {
	result := &PreflightResult{}

	if models.IsCloudPath(job.Source) {
		// A cloud source cannot be sized cheaply; the per-file counters
		// accumulate during deletion instead.
		result.Warning = "source is a cloud remote; skipping size estimation"
	} else {
		info, err := os.Stat(job.Source)
		if err != nil {
			return nil, fmt.Errorf("source %s does not exist: %w", job.Source, err)
		}
		if info.IsDir() {
			bytes, files, err := measureTree(job.Source)
			if err != nil {
				return nil, fmt.Errorf("failed to measure source %s: %w", job.Source, err)
			}
			if files == 0 {
				return nil, fmt.Errorf("source %s is empty; refusing to arm deletion", job.Source)
			}
			result.SourceBytes = bytes
			result.SourceFiles = files
		} else {
			result.SourceBytes = info.Size()
			result.SourceFiles = 1
		}
	}

	if models.IsCloudPath(job.Dest) {
		result.Warning = "cloud destination: free-space check skipped"
	} else {
		free, err := freeSpace(destCheckDir(job.Dest))
		if err != nil {
			return nil, fmt.Errorf("failed to check free space at %s: %w", job.Dest, err)
		}
		required := result.SourceBytes * spaceMarginNumerator / spaceMarginDenominator
		if int64(free) < required {
			return nil, fmt.Errorf("insufficient space at destination: need %s, have %s",
				humanize.Bytes(uint64(required)), humanize.Bytes(free))
		}

		samePath, err := sameCanonicalPath(job.Source, job.Dest)
		if err == nil && samePath {
			return nil, fmt.Errorf("source and destination resolve to the same path")
		}
	}

	return result, nil
}

// destCheckDir returns the closest existing ancestor of the destination
// so the space check works before the first transfer creates it.
func destCheckDir(dest string) string {
	dir := dest
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// measureTree returns total bytes and file count under root.
func measureTree(root string) (int64, int, error) {
	var bytes int64
	var files int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		bytes += info.Size()
		files++
		return nil
	})
	return bytes, files, err
}

// sameCanonicalPath reports whether two local paths resolve to the same
// file after symlink evaluation.
func sameCanonicalPath(a, b string) (bool, error) {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra, err = filepath.Abs(a)
		if err != nil {
			return false, err
		}
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb, err = filepath.Abs(b)
		if err != nil {
			return false, err
		}
	}
	return ra == rb, nil
}
