// -----------------------------------------------------------------------
// Cloud-Copy Driver - rclone command construction and output handling
// -----------------------------------------------------------------------

package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

type rcloneDriver struct {
	binary string
}

func newRcloneDriver() (*rcloneDriver, error) {
	path, err := LookupTool("rclone")
	if err != nil {
		return nil, err
	}
	return &rcloneDriver{binary: path}, nil
}

func (d *rcloneDriver) Tool() string { return "rclone" }

// BuildCommand constructs the rclone invocation. Per-file deletion
// selects move semantics; otherwise copy. Stats go to stderr, which is
// the stream we read; stdout is discarded.
func (d *rcloneDriver) BuildCommand(job *models.Job, perFileDelete bool) (*exec.Cmd, io.ReadCloser, error) {
	verb := "copy"
	if perFileDelete {
		verb = "move"
	}

	args := []string{verb, job.Source, job.Dest,
		"--progress",
		"--stats", "1s",
		"--stats-one-line",
		"--retries", "1",
		"--low-level-retries", "3",
	}

	if job.Settings.Checksum {
		args = append(args, "--checksum")
	}
	if job.Settings.BandwidthLimit > 0 {
		args = append(args, "--bwlimit", fmt.Sprintf("%dk", job.Settings.BandwidthLimit))
	}
	if perFileDelete {
		args = append(args, "--delete-empty-src-dirs")
	}

	cmd := exec.Command(d.binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open rclone stderr pipe: %w", err)
	}

	return cmd, stderr, nil
}

func (d *rcloneDriver) SplitFunc() bufio.SplitFunc {
	return splitCRorLF
}

func (d *rcloneDriver) ParseLine(line string) progressDelta {
	return parseRcloneLine(line)
}

func (d *rcloneDriver) Classify(code int, tail []string) ExitClass {
	return classifyRcloneExit(code, tail)
}
