// -----------------------------------------------------------------------
// Tool Probing - locate transfer binaries and discover optional flags
// -----------------------------------------------------------------------

package engine

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrToolMissing reports that a required transfer binary is not on PATH.
type ErrToolMissing struct {
	Tool string
}

func (e *ErrToolMissing) Error() string {
	return fmt.Sprintf("transfer tool %q is not installed or not on PATH", e.Tool)
}

// LookupTool resolves a transfer binary, returning a typed error when
// it is absent.
func LookupTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &ErrToolMissing{Tool: name}
	}
	return path, nil
}

var (
	appendVerifyOnce    sync.Once
	appendVerifyEnabled bool
)

// rsyncSupportsAppendVerify probes rsync --help once per process for the
// --append-verify flag. Probe failures default to not supported.
func rsyncSupportsAppendVerify() bool {
	appendVerifyOnce.Do(func() {
		out, err := exec.Command("rsync", "--help").CombinedOutput()
		if err != nil {
			return
		}
		appendVerifyEnabled = strings.Contains(string(out), "--append-verify")
	})
	return appendVerifyEnabled
}

// RcloneRemotes lists the remotes configured in rclone, without the
// trailing colon.
func RcloneRemotes() ([]string, error) {
	out, err := exec.Command("rclone", "listremotes").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list rclone remotes: %w", err)
	}
	return parseRemotes(string(out)), nil
}

// parseRemotes splits rclone listremotes output, one "name:" per line.
func parseRemotes(out string) []string {
	var remotes []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		remotes = append(remotes, strings.TrimSuffix(line, ":"))
	}
	return remotes
}

// ValidateRemoteSpec checks a cloud path of the shape name:path against
// the configured remotes.
func ValidateRemoteSpec(spec string, remotes []string) error {
	idx := strings.Index(spec, ":")
	if idx <= 0 {
		return fmt.Errorf("remote spec %q must have the form name:path", spec)
	}
	name := spec[:idx]
	for _, r := range remotes {
		if r == name {
			return nil
		}
	}
	return fmt.Errorf("remote %q is not configured in rclone", name)
}
