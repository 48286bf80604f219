// -----------------------------------------------------------------------
// Local-Copy Driver - rsync command construction and output handling
// -----------------------------------------------------------------------

package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

type rsyncDriver struct {
	binary string
}

func newRsyncDriver() (*rsyncDriver, error) {
	path, err := LookupTool("rsync")
	if err != nil {
		return nil, err
	}
	return &rsyncDriver{binary: path}, nil
}

func (d *rsyncDriver) Tool() string { return "rsync" }

// BuildCommand constructs the rsync invocation: archive semantics,
// partial-transfer resume, inline progress. stderr is merged into
// stdout so a chatty diagnostic stream can never deadlock the pipe.
func (d *rsyncDriver) BuildCommand(job *models.Job, perFileDelete bool) (*exec.Cmd, io.ReadCloser, error) {
	args := []string{"-ah", "--partial", "--progress"}

	if rsyncSupportsAppendVerify() {
		args = append(args, "--append-verify")
	}
	if job.Settings.Checksum {
		args = append(args, "--checksum")
	}
	if job.Settings.BandwidthLimit > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%dk", job.Settings.BandwidthLimit))
	}
	if perFileDelete {
		args = append(args, "--remove-source-files")
	}
	args = append(args, job.Source, job.Dest)

	cmd := exec.Command(d.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open rsync stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	return cmd, stdout, nil
}

// SplitFunc splits rsync output on both LF and CR. rsync rewrites its
// inline progress with bare carriage returns, so a newline-only scanner
// would sit on a partial line for the whole transfer.
func (d *rsyncDriver) SplitFunc() bufio.SplitFunc {
	return splitCRorLF
}

func (d *rsyncDriver) ParseLine(line string) progressDelta {
	return parseRsyncLine(line)
}

func (d *rsyncDriver) Classify(code int, tail []string) ExitClass {
	return classifyRsyncExit(code, tail)
}

// splitCRorLF is a bufio.SplitFunc treating either \r or \n as a line
// terminator.
func splitCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
