// -----------------------------------------------------------------------
// Exit Classification - decide whether a tool exit is worth retrying
// -----------------------------------------------------------------------

package engine

import "strings"

// ExitClass is the adapter's verdict on a child exit.
type ExitClass int

const (
	ExitCompleted ExitClass = iota
	ExitTransientNetwork
	ExitFatal
)

func (c ExitClass) String() string {
	switch c {
	case ExitCompleted:
		return "completed"
	case ExitTransientNetwork:
		return "transient_network"
	default:
		return "fatal"
	}
}

// rsync exit codes that are unambiguously network or IO transient:
// 10 socket IO error, 12 protocol data stream error, 30 IO timeout,
// 35 daemon connection timeout.
var rsyncNetworkExitCodes = map[int]bool{
	10: true,
	12: true,
	30: true,
	35: true,
}

// rsync exit code 23 (partial transfer) is ambiguous. It is treated as
// transient only when the output tail shows a network symptom.
const rsyncPartialTransferCode = 23

// transientPatterns are scanned, lowercased, over the tail of captured
// output to disambiguate exits whose code alone is inconclusive.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"connection closed",
	"network is unreachable",
	"no route to host",
	"temporary failure",
	"timeout",
	"broken pipe",
	"connection unexpectedly closed",
}

// tailScanLines bounds how much captured output the pattern scan reads.
const tailScanLines = 50

// outputLooksTransient scans the last tailScanLines of output for a
// transient network symptom.
func outputLooksTransient(tail []string) bool {
	start := 0
	if len(tail) > tailScanLines {
		start = len(tail) - tailScanLines
	}
	for _, line := range tail[start:] {
		lower := strings.ToLower(line)
		for _, pattern := range transientPatterns {
			if strings.Contains(lower, pattern) {
				return true
			}
		}
	}
	return false
}

// classifyRsyncExit classifies an rsync child exit.
func classifyRsyncExit(code int, tail []string) ExitClass {
	if code == 0 {
		return ExitCompleted
	}
	if rsyncNetworkExitCodes[code] {
		return ExitTransientNetwork
	}
	if code == rsyncPartialTransferCode && outputLooksTransient(tail) {
		return ExitTransientNetwork
	}
	if outputLooksTransient(tail) {
		return ExitTransientNetwork
	}
	return ExitFatal
}

// classifyRcloneExit classifies an rclone child exit. rclone does not
// document a stable transient-code set, so any nonzero exit is judged
// by the output tail alone.
func classifyRcloneExit(code int, tail []string) ExitClass {
	if code == 0 {
		return ExitCompleted
	}
	if outputLooksTransient(tail) {
		return ExitTransientNetwork
	}
	return ExitFatal
}
