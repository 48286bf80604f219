package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRsyncExit_Success(t *testing.T) {
	assert.Equal(t, ExitCompleted, classifyRsyncExit(0, nil))
}

func TestClassifyRsyncExit_NetworkCodes(t *testing.T) {
	for _, code := range []int{10, 12, 30, 35} {
		assert.Equal(t, ExitTransientNetwork, classifyRsyncExit(code, nil),
			"exit code %d should be transient", code)
	}
}

func TestClassifyRsyncExit_PartialTransferAmbiguous(t *testing.T) {
	// Code 23 alone is fatal
	assert.Equal(t, ExitFatal, classifyRsyncExit(23, []string{
		"rsync: some files/attrs were not transferred",
	}))

	// Code 23 with a network symptom in the tail is transient
	assert.Equal(t, ExitTransientNetwork, classifyRsyncExit(23, []string{
		"rsync: connection unexpectedly closed (12 bytes received so far)",
	}))
}

func TestClassifyRsyncExit_PatternsCaseInsensitive(t *testing.T) {
	assert.Equal(t, ExitTransientNetwork, classifyRsyncExit(1, []string{
		"ssh: connect to host backup.local port 22: Connection Refused",
	}))
}

func TestClassifyRsyncExit_FatalCode(t *testing.T) {
	assert.Equal(t, ExitFatal, classifyRsyncExit(1, []string{
		"rsync: change_dir \"/missing\" failed: No such file or directory",
	}))
}

func TestClassifyRcloneExit(t *testing.T) {
	assert.Equal(t, ExitCompleted, classifyRcloneExit(0, nil))
	assert.Equal(t, ExitTransientNetwork, classifyRcloneExit(1, []string{
		"Failed to copy: dial tcp: connection timed out",
	}))
	assert.Equal(t, ExitFatal, classifyRcloneExit(1, []string{
		"Failed to create file system: didn't find section in config file",
	}))
}

func TestOutputLooksTransient_ScansOnlyTail(t *testing.T) {
	// A symptom buried beyond the tail window is not seen
	lines := make([]string, 0, tailScanLines+10)
	lines = append(lines, "error: broken pipe")
	for i := 0; i < tailScanLines+5; i++ {
		lines = append(lines, "transferring file")
	}
	assert.False(t, outputLooksTransient(lines))

	// Within the window it is
	lines = append(lines, "error: broken pipe")
	assert.True(t, outputLooksTransient(lines))
}
