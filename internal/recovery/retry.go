// -----------------------------------------------------------------------
// Retry Decorator - exponential-backoff retry for transient failures
// -----------------------------------------------------------------------

package recovery

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Recorder receives error events produced by the decorators. The error
// event log implements it; tests substitute a capture.
type Recorder interface {
	Record(event *models.ErrorEvent)
}

// RetryConfig tunes one retry wrapper.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Component    string
	LogErrors    bool
	// Retriable overrides the default transient-error predicate.
	Retriable func(error) bool
	// sleep is swapped in tests.
	sleep func(time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.Retriable == nil {
		c.Retriable = IsTransient
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// IsTransient is the default predicate: transient IO, timeout and
// connection errors are worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, target := range []error{
		syscall.EAGAIN, syscall.EBUSY, syscall.EINTR,
		syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT,
		syscall.EPIPE, io.ErrUnexpectedEOF, os.ErrDeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Retry runs fn with exponential backoff: initial x 2^(attempt-1)
// between attempts. On exhaustion the last error is recorded at Medium
// severity and returned.
func Retry(cfg RetryConfig, logger arbor.ILogger, recorder Recorder, op string, fn func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !cfg.Retriable(lastErr) || attempt > cfg.MaxRetries {
			break
		}

		delay := cfg.InitialDelay * time.Duration(1<<uint(attempt-1))
		if cfg.LogErrors && logger != nil {
			logger.Warn().
				Str("component", cfg.Component).
				Str("op", op).
				Int("attempt", attempt).
				Str("delay", delay.String()).
				Err(lastErr).
				Msg("Transient failure, retrying")
		}
		cfg.sleep(delay)
	}

	if recorder != nil {
		recorder.Record(models.ErrorEventFromError(lastErr, models.SeverityMedium, cfg.Component,
			fmt.Sprintf("%s failed after retries", op)))
	}
	return lastErr
}
