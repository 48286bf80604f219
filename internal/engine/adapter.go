// -----------------------------------------------------------------------
// Transfer Engine Adapter - drives one transfer-tool child process for
// one job: progress snapshot, retry state machine, stop semantics
// -----------------------------------------------------------------------

package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Config tunes adapter behavior. Zero values are filled from defaults.
type Config struct {
	MaxRetries     int
	MaxBackoff     time.Duration
	StopGrace      time.Duration
	StopDrainLines int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.StopGrace == 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.StopDrainLines == 0 {
		c.StopDrainLines = 10
	}
	return c
}

// PostTransfer runs after a successful transfer and before the adapter
// reports completion. The deletion pipeline implements it. The runner
// publishes its state through the mutate callback, which applies a
// function to the live progress snapshot.
type PostTransfer interface {
	Run(job *models.Job, mutate func(func(*models.Progress)))
}

// driver abstracts the tool-specific parts of an adapter.
type driver interface {
	Tool() string
	BuildCommand(job *models.Job, perFileDelete bool) (*exec.Cmd, io.ReadCloser, error)
	SplitFunc() bufio.SplitFunc
	ParseLine(line string) progressDelta
	Classify(code int, tail []string) ExitClass
}

// tailRingSize bounds the captured-output ring used for exit
// classification.
const tailRingSize = 200

// Adapter owns one transfer-tool child for one job. A single reader
// goroutine consumes the child's stream; the snapshot is guarded by a
// mutex and released to callers by value.
type Adapter struct {
	job    *models.Job
	drv    driver
	cfg    Config
	logger arbor.ILogger

	logPath       string
	perFileDelete bool
	post          PostTransfer

	mu         sync.Mutex
	progress   models.Progress
	running    bool
	outcome    models.JobStatus
	retryCount int
	tail       []string
	cmd        *exec.Cmd

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New constructs an adapter for a job, resolving the tool binary up
// front so a missing tool is reported before anything starts.
func New(job *models.Job, cfg Config, logPath string, logger arbor.ILogger) (*Adapter, error) {
	var drv driver
	var err error
	switch job.Type {
	case models.JobTypeLocalCopy:
		drv, err = newRsyncDriver()
	case models.JobTypeCloudCopy:
		drv, err = newRcloneDriver()
	default:
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
	if err != nil {
		return nil, err
	}

	perFile := job.Settings.ShouldDelete() && job.Settings.DeletionMode == models.DeletionPerFile

	a := &Adapter{
		job:           job.Clone(),
		drv:           drv,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		logPath:       logPath,
		perFileDelete: perFile,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	a.progress = job.Progress.Clone()
	a.progress.StatusDetail = "starting"
	return a, nil
}

// Tool returns the name of the underlying binary.
func (a *Adapter) Tool() string { return a.drv.Tool() }

// SetPostTransfer installs a post-transfer phase, run after the tool
// exits cleanly and before the adapter reports completion. Must be
// called before Start. A deletion-armed job gets its deletion block
// immediately, phase transfer, so observers see the pipeline state from
// the first update on.
func (a *Adapter) SetPostTransfer(p PostTransfer) {
	a.post = p
	if a.job.Settings.ShouldDelete() && a.progress.Deletion == nil {
		a.progress.Deletion = &models.Deletion{
			Enabled: true,
			Mode:    a.job.Settings.DeletionMode,
			Phase:   models.DeletionPhaseTransfer,
		}
	}
}

// Start launches the child process and the reader goroutine. Returns an
// error if a child is already live.
func (a *Adapter) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("engine for job %s is already running", a.job.ID)
	}

	cmd, stream, err := a.drv.BuildCommand(a.job, a.perFileDelete)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if err := cmd.Start(); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", a.drv.Tool(), err)
	}

	a.cmd = cmd
	a.running = true
	a.outcome = ""
	a.progress.StatusDetail = "running"
	a.mu.Unlock()

	go a.run(cmd, stream)
	return nil
}

// run is the adapter's single background worker. It reads the child
// stream, waits for exit, and drives the retry state machine.
func (a *Adapter) run(cmd *exec.Cmd, stream io.ReadCloser) {
	defer close(a.doneCh)

	logFile := a.openLog()
	if logFile != nil {
		defer logFile.Close()
	}

	for {
		a.consumeStream(stream, logFile)

		err := cmd.Wait()
		code := exitCode(err)

		if a.stopRequested() {
			a.mu.Lock()
			a.running = false
			a.progress.StatusDetail = "paused"
			a.mu.Unlock()
			return
		}

		a.mu.Lock()
		class := a.drv.Classify(code, a.tail)
		a.mu.Unlock()

		switch class {
		case ExitCompleted:
			a.mu.Lock()
			a.progress.Percent = 100
			if a.progress.TotalBytes > 0 {
				a.progress.BytesTransferred = a.progress.TotalBytes
			}
			a.progress.SpeedBytes = 0
			a.progress.ETASeconds = 0
			a.progress.StatusDetail = "finalizing"
			a.mu.Unlock()

			// The deletion pipeline runs while the adapter still counts
			// as live, so observers keep receiving phase updates.
			if a.post != nil {
				a.post.Run(a.job, a.MutateProgress)
			}

			a.mu.Lock()
			a.running = false
			a.outcome = models.JobStatusCompleted
			a.progress.StatusDetail = "completed"
			a.mu.Unlock()
			a.logger.Info().Str("job_id", a.job.ID).Str("tool", a.drv.Tool()).Msg("Transfer completed")
			return

		case ExitTransientNetwork:
			a.mu.Lock()
			canRetry := a.retryCount < a.cfg.MaxRetries
			attempt := a.retryCount
			a.mu.Unlock()

			if !canRetry {
				a.fail(code, "retry attempts exhausted")
				return
			}

			delay := backoffDelay(attempt, a.cfg.MaxBackoff)
			a.mu.Lock()
			a.retryCount++
			a.progress.StatusDetail = "running (retrying...)"
			a.mu.Unlock()
			a.logger.Warn().
				Str("job_id", a.job.ID).
				Int("exit_code", code).
				Int("attempt", attempt+1).
				Str("delay", delay.String()).
				Msg("Transient network failure, retrying")

			select {
			case <-a.stopCh:
				a.mu.Lock()
				a.running = false
				a.progress.StatusDetail = "paused"
				a.mu.Unlock()
				return
			case <-time.After(delay):
			}

			// Same command supports resume; fresh tail for the new child.
			var stream2 io.ReadCloser
			var err2 error
			cmd, stream2, err2 = a.drv.BuildCommand(a.job, a.perFileDelete)
			if err2 != nil {
				a.fail(code, fmt.Sprintf("retry setup failed: %v", err2))
				return
			}
			if err2 = cmd.Start(); err2 != nil {
				a.fail(code, fmt.Sprintf("retry start failed: %v", err2))
				return
			}
			a.mu.Lock()
			a.cmd = cmd
			a.tail = nil
			a.progress.StatusDetail = "running"
			a.mu.Unlock()
			stream = stream2

		default:
			a.fail(code, "transfer tool reported a non-transient failure")
			return
		}
	}
}

// consumeStream drains the child's output, feeding the parser, the tail
// ring and the per-job transfer log. After a stop request only a
// bounded number of trailing lines are still parsed for final progress.
func (a *Adapter) consumeStream(stream io.Reader, logFile *os.File) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(a.drv.SplitFunc())

	drained := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if logFile != nil {
			// Log write failures are swallowed.
			fmt.Fprintln(logFile, line)
		}

		if a.stopRequested() {
			drained++
			if drained > a.cfg.StopDrainLines {
				continue
			}
		}

		delta := a.drv.ParseLine(line)

		a.mu.Lock()
		if len(a.tail) >= tailRingSize {
			a.tail = a.tail[1:]
		}
		a.tail = append(a.tail, line)
		if !delta.empty() {
			a.merge(delta)
		}
		a.mu.Unlock()
	}
}

// merge folds a partial parse into the snapshot. Caller holds a.mu.
// Missing fields never clear populated ones.
func (a *Adapter) merge(d progressDelta) {
	if d.BytesTransferred != nil {
		a.progress.BytesTransferred = *d.BytesTransferred
	}
	if d.TotalBytes != nil {
		a.progress.TotalBytes = *d.TotalBytes
	}
	if d.Percent != nil {
		a.progress.Percent = *d.Percent
	}
	if d.SpeedBytes != nil {
		a.progress.SpeedBytes = *d.SpeedBytes
	}
	if d.ETASeconds != nil {
		a.progress.ETASeconds = *d.ETASeconds
	}

	// Reconstruct the byte total when only transferred bytes and percent
	// are known. A new estimate is committed only when no total exists
	// or it moved by more than 10%, so the figure does not thrash.
	if d.TotalBytes == nil && a.progress.Percent > 0 && a.progress.BytesTransferred > 0 {
		estimate := a.progress.BytesTransferred * 100 / int64(a.progress.Percent)
		current := a.progress.TotalBytes
		if current == 0 {
			a.progress.TotalBytes = estimate
		} else {
			diff := estimate - current
			if diff < 0 {
				diff = -diff
			}
			if diff*10 > current {
				a.progress.TotalBytes = estimate
			}
		}
	}
}

// fail records a terminal failure, preserving the last parsed progress.
func (a *Adapter) fail(code int, reason string) {
	a.mu.Lock()
	a.running = false
	a.outcome = models.JobStatusFailed
	a.progress.SpeedBytes = 0
	a.progress.StatusDetail = fmt.Sprintf("failed: %s (exit %d)", reason, code)
	a.mu.Unlock()
	a.logger.Error().
		Str("job_id", a.job.ID).
		Str("tool", a.drv.Tool()).
		Int("exit_code", code).
		Str("reason", reason).
		Msg("Transfer failed")
}

// Stop cooperatively terminates the child: signal, drain trailing
// output, then force-kill after the grace period. Safe to call during a
// retry wait; the wait is interrupted. Returns false when no child was
// live.
func (a *Adapter) Stop() bool {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return false
	}
	cmd := a.cmd
	a.mu.Unlock()

	a.stopOnce.Do(func() { close(a.stopCh) })

	if cmd != nil && cmd.Process != nil {
		// Polite first; the reader drains trailing lines meanwhile.
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-a.doneCh:
	case <-time.After(a.cfg.StopGrace):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		select {
		case <-a.doneCh:
		case <-time.After(time.Second):
		}
	}

	a.mu.Lock()
	a.running = false
	a.progress.StatusDetail = "paused"
	a.mu.Unlock()
	return true
}

// IsRunning reports whether a child exists and has not exited.
func (a *Adapter) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Progress returns a value copy of the current snapshot.
func (a *Adapter) Progress() models.Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress.Clone()
}

// Outcome returns the terminal status once the adapter finished, or ""
// while it is live or was stopped.
func (a *Adapter) Outcome() models.JobStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// RetryCount returns how many transient retries have happened.
func (a *Adapter) RetryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retryCount
}

// SetProgress overwrites the snapshot. Used by the deletion pipeline to
// publish verification and deletion state through the live engine.
func (a *Adapter) SetProgress(p models.Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress = p.Clone()
}

// MutateProgress applies fn to the snapshot under the lock.
func (a *Adapter) MutateProgress(fn func(p *models.Progress)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.progress)
}

func (a *Adapter) stopRequested() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

func (a *Adapter) openLog() *os.File {
	if a.logPath == "" {
		return nil
	}
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		a.logger.Warn().Str("path", a.logPath).Err(err).Msg("Failed to open transfer log")
		return nil
	}
	return f
}

// backoffDelay is min(2^attempt, max) seconds, attempt starting at zero.
func backoffDelay(attempt int, max time.Duration) time.Duration {
	if attempt > 20 {
		return max
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > max {
		return max
	}
	return d
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
