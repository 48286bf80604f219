// -----------------------------------------------------------------------
// Deletion Audit Log - plain-text record of every deleted source file
// -----------------------------------------------------------------------

package deletion

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// AuditLog appends deletion records to one plain-text file per job.
// Writes are best-effort and never return an error to the pipeline.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog creates an audit log writing to path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

func (l *AuditLog) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
}

// Start records the opening entry for a deletion run.
func (l *AuditLog) Start(mode models.DeletionMode, estimatedFiles int) {
	l.write(fmt.Sprintf("START mode=%s estimated_files=%d", mode, estimatedFiles))
}

// VerificationStarted records the beginning of the pre-delete check.
func (l *AuditLog) VerificationStarted(checksum bool) {
	l.write(fmt.Sprintf("VERIFICATION STARTED checksum=%t", checksum))
}

// VerificationResult records the outcome of the pre-delete check. A
// failed verification is the only audit trace of an aborted run, so it
// carries the mismatch count.
func (l *AuditLog) VerificationResult(passed bool, checked, mismatches int) {
	verdict := "PASSED"
	if !passed {
		verdict = "FAILED"
	}
	l.write(fmt.Sprintf("VERIFICATION %s files_checked=%d mismatches=%d", verdict, checked, mismatches))
}

// Deleted records one removed file with its absolute path and size.
func (l *AuditLog) Deleted(path string, size int64, note string) {
	entry := fmt.Sprintf("DELETED %s (%s)", path, humanize.Bytes(uint64(size)))
	if note != "" {
		entry += " note=" + note
	}
	l.write(entry)
}

// End records the closing summary entry.
func (l *AuditLog) End(files int64, bytes int64, errors int) {
	l.write(fmt.Sprintf("END total_files=%d total_bytes=%s errors=%d",
		files, humanize.Bytes(uint64(bytes)), errors))
}
