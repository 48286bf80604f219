// -----------------------------------------------------------------------
// Log Indexer - incremental indexing of per-job transfer logs into the
// embedded store so the API can query them by job and level
// -----------------------------------------------------------------------

package logindex

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
	"github.com/molotovsingh/personal-backup-tool/internal/storage"
)

const (
	defaultInterval = 30 * time.Second
	batchSize       = 500
)

// Indexer periodically scans the transfer log directory and indexes new
// lines since each file's checkpoint. A truncated or rotated file is
// re-indexed from the start.
type Indexer struct {
	store    *storage.LogStore
	logsDir  string
	interval time.Duration
	logger   arbor.ILogger
	degrader *recovery.Degrader
}

// New builds an indexer over the transfer log directory.
func New(store *storage.LogStore, logsDir string, interval time.Duration, logger arbor.ILogger) *Indexer {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Indexer{
		store:    store,
		logsDir:  logsDir,
		interval: interval,
		logger:   logger,
	}
}

// SetDegrader makes failed index passes flip the component into
// degraded mode instead of just logging.
func (ix *Indexer) SetDegrader(d *recovery.Degrader) {
	ix.degrader = d
}

// Run indexes on a fixed interval until the context is canceled. Pass
// failures are logged and retried next interval; they never stop the
// loop.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.Info().Str("dir", ix.logsDir).Str("interval", ix.interval.String()).Msg("Log indexer started")
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		if ix.degrader != nil {
			recovery.WithFallback(ix.degrader, "logindex", false, struct{}{}, func() (struct{}, error) {
				return struct{}{}, ix.IndexOnce()
			})
		} else if err := ix.IndexOnce(); err != nil {
			ix.logger.Warn().Err(err).Msg("Log index pass failed")
		}
		select {
		case <-ctx.Done():
			ix.logger.Info().Msg("Log indexer stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IndexOnce runs a single incremental pass over every transfer log.
func (ix *Indexer) IndexOnce() error {
	entries, err := os.ReadDir(ix.logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		jobID, ok := jobIDFromLogName(name)
		if !ok {
			continue
		}
		path := filepath.Join(ix.logsDir, name)
		if err := ix.indexFile(path, jobID); err != nil {
			ix.logger.Warn().Str("file", name).Err(err).Msg("Failed to index transfer log")
		}
	}
	return nil
}

// jobIDFromLogName extracts the job id from "<tool>_<job-id>.log".
// Deletion audit logs use the same shape with "deletions" as the tool.
func jobIDFromLogName(name string) (string, bool) {
	if !strings.HasSuffix(name, ".log") {
		return "", false
	}
	base := strings.TrimSuffix(name, ".log")
	idx := strings.Index(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", false
	}
	return base[idx+1:], true
}

func (ix *Indexer) indexFile(path, jobID string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cp, err := ix.store.Checkpoint(path)
	if err != nil {
		return err
	}
	if info.Size() < cp.LastPosition {
		// Rotated or truncated underneath us
		cp.LastPosition = 0
		cp.LastLineNumber = 0
	}
	if info.Size() == cp.LastPosition {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(cp.LastPosition, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	position := cp.LastPosition
	lineNo := cp.LastLineNumber
	batch := make([]*models.TransferLogEntry, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.store.Append(batch); err != nil {
			return err
		}
		batch = batch[:0]
		cp.LastPosition = position
		cp.LastLineNumber = lineNo
		cp.IndexedAt = time.Now()
		return ix.store.SaveCheckpoint(cp)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		complete := err == nil
		if !complete && line == "" {
			break
		}
		if !complete {
			// Partial trailing line: leave it for the next pass, the
			// writer may still be appending to it.
			break
		}

		position += int64(len(line))
		lineNo++
		text := strings.TrimRight(line, "\r\n")
		if text == "" {
			continue
		}

		batch = append(batch, &models.TransferLogEntry{
			JobID:      jobID,
			Timestamp:  time.Now(),
			Level:      ClassifyLine(text),
			Message:    text,
			FilePath:   path,
			LineNumber: lineNo,
		})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// ClassifyLine maps a raw tool output line to a log level.
func ClassifyLine(line string) models.LogLevel {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed") ||
		strings.Contains(lower, "fatal") || strings.Contains(lower, "cannot"):
		return models.LogLevelError
	case strings.Contains(lower, "warn") || strings.Contains(lower, "skipping") ||
		strings.Contains(lower, "vanished") || strings.Contains(lower, "retry"):
		return models.LogLevelWarning
	case strings.Contains(lower, "to-chk") || strings.Contains(lower, "transferred:") ||
		strings.HasPrefix(lower, "sending ") || strings.HasPrefix(lower, "receiving "):
		return models.LogLevelDebug
	default:
		return models.LogLevelInfo
	}
}
