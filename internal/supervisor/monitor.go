// -----------------------------------------------------------------------
// Event Monitor - single poll loop that drives engine state into the
// store and fans updates out to subscribers
// -----------------------------------------------------------------------

package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/common"
	"github.com/molotovsingh/personal-backup-tool/internal/fanout"
	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
)

// Monitor polls the supervisor and broadcasts job updates. It is the
// single producer of fan-out messages, which is what keeps per-job
// message ordering intact.
type Monitor struct {
	sup      *Supervisor
	hub      *fanout.Hub
	recorder recovery.Recorder
	cfg      common.MonitorConfig
	logger   arbor.ILogger

	// prev holds each job's status as of the previous cycle, keyed by
	// job id. Transitions out of Running produce exactly one final
	// update because the entry is overwritten in the same cycle.
	prev   map[string]models.JobStatus
	cycles int
}

// NewMonitor builds a monitor over a supervisor and hub.
func NewMonitor(sup *Supervisor, hub *fanout.Hub, cfg common.MonitorConfig, logger arbor.ILogger, recorder recovery.Recorder) *Monitor {
	if cfg.ActiveInterval == 0 {
		cfg.ActiveInterval = time.Second
	}
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	if cfg.ReaperCycles == 0 {
		cfg.ReaperCycles = 10
	}
	return &Monitor{
		sup:      sup,
		hub:      hub,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		prev:     make(map[string]models.JobStatus),
	}
}

// Run executes the poll loop until the context is canceled. A cycle
// failure degrades the loop (error event plus user notification) but
// never stops it.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Str("active_interval", m.cfg.ActiveInterval.String()).
		Str("idle_interval", m.cfg.IdleInterval.String()).
		Msg("Event monitor started")

	for {
		if err := m.runCycle(); err != nil {
			m.degrade(err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		interval := m.cfg.IdleInterval
		if m.sup.HasRunningEngines() {
			interval = m.cfg.ActiveInterval
		}
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Event monitor stopped")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Cycle runs one poll pass. Exported for tests; Run calls it in a loop.
func (m *Monitor) Cycle() error {
	return m.runCycle()
}

func (m *Monitor) runCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor cycle panic: %v", r)
		}
	}()

	m.cycles++

	// Pull fresh engine state into the store first so the broadcast
	// below reads post-update status.
	for _, job := range m.sup.ListJobs() {
		if job.Status == models.JobStatusRunning {
			m.sup.UpdateJobFromEngine(job.ID)
		}
	}

	jobs := m.sup.ListJobs()
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		seen[job.ID] = true
		previous, known := m.prev[job.ID]

		switch {
		case job.Status == models.JobStatusRunning:
			m.hub.BroadcastUpdate(models.NewJobUpdate(job, false))
		case known && previous == models.JobStatusRunning:
			// Running -> Completed/Failed/Paused: the one final update.
			m.hub.BroadcastUpdate(models.NewJobUpdate(job, true))
			m.logger.Info().
				Str("job_id", job.ID).
				Str("from", string(previous)).
				Str("to", string(job.Status)).
				Msg("Broadcast final job update")
		}
		m.prev[job.ID] = job.Status
	}

	// Forget deleted jobs so their ids do not pin the map forever.
	for id := range m.prev {
		if !seen[id] {
			delete(m.prev, id)
		}
	}

	if m.cycles%m.cfg.ReaperCycles == 0 {
		m.sup.CleanupStoppedEngines()
	}
	return nil
}

func (m *Monitor) degrade(err error) {
	m.logger.Error().Err(err).Msg("Monitor cycle failed, continuing degraded")
	if m.recorder != nil {
		m.recorder.Record(models.ErrorEventFromError(err, models.SeverityHigh, "monitor",
			"monitor cycle failed"))
	}
	m.hub.Notify(models.NotifyWarning, "live updates degraded", err.Error())
}
