// -----------------------------------------------------------------------
// Indexed Log Entry - Per-job transfer log lines indexed for querying
// -----------------------------------------------------------------------

package models

import "time"

// LogLevel classifies an indexed transfer-log line.
type LogLevel string

const (
	LogLevelError   LogLevel = "error"
	LogLevelWarning LogLevel = "warning"
	LogLevelInfo    LogLevel = "info"
	LogLevelDebug   LogLevel = "debug"
)

// TransferLogEntry is one indexed line from a per-job transfer log.
type TransferLogEntry struct {
	ID         uint64    `json:"id" badgerhold:"key"`
	JobID      string    `json:"job_id" badgerhold:"index"`
	JobName    string    `json:"job_name"`
	Timestamp  time.Time `json:"timestamp" badgerhold:"index"`
	Level      LogLevel  `json:"level" badgerhold:"index"`
	Message    string    `json:"message"`
	FilePath   string    `json:"file_path"`
	LineNumber int       `json:"line_number"`
}

// LogCheckpoint remembers how far a source log file has been indexed so
// an incremental pass resumes exactly where the previous one stopped.
type LogCheckpoint struct {
	FilePath       string    `json:"file_path" badgerhold:"key"`
	LastPosition   int64     `json:"last_position"`
	LastLineNumber int       `json:"last_line_number"`
	IndexedAt      time.Time `json:"indexed_at"`
}
