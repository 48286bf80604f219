// -----------------------------------------------------------------------
// Job Supervisor - owns the live engines, enforces status transitions,
// throttles progress persistence and answers status queries
// -----------------------------------------------------------------------

package supervisor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/common"
	"github.com/molotovsingh/personal-backup-tool/internal/deletion"
	"github.com/molotovsingh/personal-backup-tool/internal/engine"
	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
	"github.com/molotovsingh/personal-backup-tool/internal/storage"
)

// Engine is the supervisor's view of one live transfer adapter.
// *engine.Adapter satisfies it; tests substitute fakes.
type Engine interface {
	Start() error
	Stop() bool
	IsRunning() bool
	Progress() models.Progress
	Outcome() models.JobStatus
	Tool() string
}

// EngineFactory constructs an engine for a job about to start.
type EngineFactory func(job *models.Job) (Engine, error)

var _ Engine = (*engine.Adapter)(nil)

// ErrorStatsProvider supplies error counts for the health summary.
type ErrorStatsProvider interface {
	Stats() (*models.ErrorStats, error)
}

// saveMark remembers the last persisted progress for the throttle.
type saveMark struct {
	at      time.Time
	percent int
}

// Config tunes supervisor behavior.
type Config struct {
	Engine  common.EngineConfig
	Store   common.StoreConfig
	Monitor common.MonitorConfig
}

// Supervisor is the central component. L_RW guards semantic operations
// (read ops take the read side, mutating ops the write side); the inner
// L_M keeps individual map-slot accesses short.
type Supervisor struct {
	store      *storage.JobStore
	recorder   recovery.Recorder
	errStats   ErrorStatsProvider
	paths      *common.Paths
	logger     arbor.ILogger
	cfg        Config
	validate   *validator.Validate
	buildEng   EngineFactory
	settingsFn func() models.Settings

	lrw sync.RWMutex
	lm  sync.Mutex

	engines   map[string]Engine
	lastSave  map[string]saveMark
	stopTimes map[string]time.Time

	// breakers guard engine spawning per tool. Repeated start failures
	// (a broken rsync install, a dead rclone remote) open the circuit
	// and starts fail fast until the probe succeeds again.
	breakers map[string]*recovery.Breaker

	cache      []*models.Job
	cacheAt    time.Time
	cacheDirty bool
}

// New builds a supervisor and recovers zombie records left behind by a
// crash: every stored Running job is rewritten to Paused, never
// auto-resumed.
func New(store *storage.JobStore, paths *common.Paths, cfg Config, logger arbor.ILogger, recorder recovery.Recorder, errStats ErrorStatsProvider) *Supervisor {
	s := &Supervisor{
		store:      store,
		recorder:   recorder,
		errStats:   errStats,
		paths:      paths,
		logger:     logger,
		cfg:        cfg,
		validate:   validator.New(),
		engines:    make(map[string]Engine),
		lastSave:   make(map[string]saveMark),
		stopTimes:  make(map[string]time.Time),
		breakers:   make(map[string]*recovery.Breaker),
		cacheDirty: true,
	}
	s.buildEng = s.defaultEngineFactory
	s.recoverZombies()
	return s
}

// SetEngineFactory overrides engine construction. Used by tests.
func (s *Supervisor) SetEngineFactory(f EngineFactory) {
	s.buildEng = f
}

// SetSettingsSource supplies the global settings. Per-run defaults
// (bandwidth, retry budget, checksum verification) come from here when
// a job leaves them unset.
func (s *Supervisor) SetSettingsSource(fn func() models.Settings) {
	s.settingsFn = fn
}

func (s *Supervisor) defaultEngineFactory(job *models.Job) (Engine, error) {
	if job.Type == models.JobTypeCloudCopy {
		// Catch a typo'd remote before spawning rclone. When listremotes
		// itself fails the check is skipped and the transfer surfaces the
		// real error.
		if remotes, err := engine.RcloneRemotes(); err == nil {
			spec := job.Dest
			if !models.IsCloudPath(spec) {
				spec = job.Source
			}
			if err := engine.ValidateRemoteSpec(spec, remotes); err != nil {
				return nil, err
			}
		}
	}

	logPath, err := s.paths.TransferLog(job.Type.Tool(), job.ID)
	if err != nil {
		return nil, err
	}

	engineCfg := engine.Config{
		MaxRetries:     s.cfg.Engine.MaxRetries,
		MaxBackoff:     s.cfg.Engine.MaxBackoff,
		StopGrace:      s.cfg.Engine.StopGrace,
		StopDrainLines: s.cfg.Engine.StopDrainLines,
	}
	if s.settingsFn != nil {
		// Global settings fill the gaps for this run only; the stored
		// job keeps its own (possibly unset) values.
		global := s.settingsFn()
		if global.MaxRetryAttempts > 0 {
			engineCfg.MaxRetries = global.MaxRetryAttempts
		}
		job = job.Clone()
		if job.Settings.BandwidthLimit == 0 {
			job.Settings.BandwidthLimit = global.DefaultBandwidthLimit
		}
		if !job.Settings.Checksum && global.VerificationMode == models.VerificationChecksum {
			job.Settings.Checksum = true
		}
	}

	adapter, err := engine.New(job, engineCfg, logPath, s.logger)
	if err != nil {
		return nil, err
	}

	if job.Settings.ShouldDelete() {
		auditPath, err := s.paths.DeletionLog(job.ID)
		if err != nil {
			return nil, err
		}
		adapter.SetPostTransfer(deletion.NewPipeline(auditPath, s.logger))
	}
	return adapter, nil
}

func (s *Supervisor) recoverZombies() {
	for _, job := range s.store.LoadAll() {
		if job.Status != models.JobStatusRunning {
			continue
		}
		job.Status = models.JobStatusPaused
		job.Progress.StatusDetail = "paused (recovered after restart)"
		job.Touch()
		if err := s.store.Update(job); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to persist zombie recovery")
			continue
		}
		s.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("Recovered zombie job to paused")
	}
}

// CreateRequest is the validated input for CreateJob.
type CreateRequest struct {
	Name     string             `json:"name" validate:"required,min=1"`
	Source   string             `json:"source" validate:"required"`
	Dest     string             `json:"dest" validate:"required"`
	Type     models.JobType     `json:"type" validate:"required"`
	Settings models.JobSettings `json:"settings"`
}

// CreateJob validates the request, persists a new pending job and
// invalidates the listing cache.
func (s *Supervisor) CreateJob(req CreateRequest) models.OpResult {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	if err := s.validate.Struct(req); err != nil {
		return models.ResultErr(fmt.Sprintf("invalid job: %v", err))
	}

	job := models.NewJob(req.Name, req.Source, req.Dest, req.Type, req.Settings)
	if err := job.Validate(); err != nil {
		return models.ResultErr(err.Error())
	}

	if err := s.store.Save(job); err != nil {
		return models.ResultErr(fmt.Sprintf("failed to save job: %v", err))
	}

	s.markDirty()
	s.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Str("type", string(job.Type)).Msg("Job created")
	return models.ResultOK("job created", job)
}

// StartJob launches an engine for a job. Accepted only from Pending,
// Paused or Failed; a live engine for the id is a duplicate start.
func (s *Supervisor) StartJob(id string) models.OpResult {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	job, ok := s.store.Get(id)
	if !ok {
		return models.ResultErr(fmt.Sprintf("job %s not found", id))
	}

	switch job.Status {
	case models.JobStatusPending, models.JobStatusPaused, models.JobStatusFailed:
	case models.JobStatusRunning:
		return models.ResultErr("job is already running")
	default:
		return models.ResultErr("completed job cannot be restarted; create a new job")
	}

	s.lm.Lock()
	if eng, exists := s.engines[id]; exists && eng.IsRunning() {
		s.lm.Unlock()
		return models.ResultErr("an engine for this job is already running")
	}
	s.lm.Unlock()

	if !models.IsCloudPath(job.Source) {
		if _, err := os.Stat(job.Source); err != nil {
			return models.ResultErr(fmt.Sprintf("source path %s is not accessible", job.Source))
		}
	}

	startDetail := "running"
	if job.Settings.ShouldDelete() {
		result, err := deletion.Preflight(job)
		if err != nil {
			return models.ResultErr(fmt.Sprintf("deletion pre-flight failed: %v", err))
		}
		if result.Warning != "" {
			// Keep the warning visible alongside the running state.
			startDetail = "running (" + result.Warning + ")"
		}
	}

	var eng Engine
	executed, err := s.breakerFor(job.Type.Tool()).Call(func() error {
		built, buildErr := s.buildEng(job)
		if buildErr != nil {
			return buildErr
		}
		if startErr := built.Start(); startErr != nil {
			// A failed start must never leave a half-registered engine.
			built.Stop()
			return startErr
		}
		eng = built
		return nil
	})
	if !executed {
		return models.ResultErr(fmt.Sprintf("%s engine temporarily disabled after repeated start failures", job.Type.Tool()))
	}
	if err != nil {
		if s.recorder != nil {
			s.recorder.Record(models.ErrorEventFromError(err, models.SeverityHigh, "engine",
				"engine failed to start").WithJob(job.ID, job.Name))
		}
		return models.ResultErr(fmt.Sprintf("failed to start transfer: %v", err))
	}

	s.lm.Lock()
	s.engines[id] = eng
	delete(s.lastSave, id)
	delete(s.stopTimes, id)
	s.lm.Unlock()

	job.Status = models.JobStatusRunning
	job.Progress.StatusDetail = startDetail
	job.Touch()
	if err := s.store.Update(job); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Failed to persist running status")
	}

	s.markDirty()
	s.logger.Info().Str("job_id", id).Str("tool", eng.Tool()).Msg("Job started")
	return models.ResultOK("job started", job)
}

// StopJob stops a running engine and pauses the job. Stopping a
// non-running job is a safe no-op with a non-success result.
func (s *Supervisor) StopJob(id string) models.OpResult {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	s.lm.Lock()
	eng, exists := s.engines[id]
	s.lm.Unlock()
	if !exists || !eng.IsRunning() {
		return models.ResultErr("job is not running")
	}

	eng.Stop()

	job, ok := s.store.Get(id)
	if !ok {
		s.dropEngine(id)
		return models.ResultErr(fmt.Sprintf("job %s not found", id))
	}

	job.Progress = eng.Progress()
	job.Status = models.JobStatusPaused
	job.Touch()
	if err := s.store.Update(job); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Failed to persist paused status")
	}

	s.dropEngine(id)
	s.markDirty()
	s.logger.Info().Str("job_id", id).Msg("Job stopped")
	return models.ResultOK("job paused", job)
}

// DeleteJob removes a job. Rejected while a live engine exists.
func (s *Supervisor) DeleteJob(id string) models.OpResult {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	s.lm.Lock()
	eng, exists := s.engines[id]
	s.lm.Unlock()
	if exists && eng.IsRunning() {
		return models.ResultErr("job is running; stop it before deleting")
	}

	if err := s.store.Delete(id); err != nil {
		return models.ResultErr(fmt.Sprintf("failed to delete job: %v", err))
	}

	s.dropEngine(id)
	s.markDirty()
	s.logger.Info().Str("job_id", id).Msg("Job deleted")
	return models.ResultOK("job deleted", nil)
}

// GetJobStatus returns the job merged with live engine progress when an
// engine exists, else the stored progress.
func (s *Supervisor) GetJobStatus(id string) (*models.Job, bool) {
	s.lrw.RLock()
	defer s.lrw.RUnlock()
	return s.jobStatusLocked(id)
}

func (s *Supervisor) jobStatusLocked(id string) (*models.Job, bool) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}

	s.lm.Lock()
	eng, exists := s.engines[id]
	s.lm.Unlock()
	if exists {
		job.Progress = eng.Progress()
	}
	return job, true
}

// UpdateJobFromEngine merges live progress into the job and persists it
// subject to the throttle. When the engine has finished, the final
// progress is saved first, then the terminal status, and the engine is
// dropped from the maps.
func (s *Supervisor) UpdateJobFromEngine(id string) models.OpResult {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	s.lm.Lock()
	eng, exists := s.engines[id]
	s.lm.Unlock()
	if !exists {
		return models.ResultErr(fmt.Sprintf("no engine for job %s", id))
	}

	job, ok := s.store.Get(id)
	if !ok {
		s.dropEngine(id)
		return models.ResultErr(fmt.Sprintf("job %s not found", id))
	}
	baseVersion := job.Version

	if eng.IsRunning() {
		job.Progress = eng.Progress()
		if !s.shouldPersistProgress(id, job.Progress.Percent) {
			return models.ResultOK("progress merged", job)
		}
		s.checkConcurrentModification(id, baseVersion)
		job.Touch()
		if err := s.store.Update(job); err != nil {
			return models.ResultErr(fmt.Sprintf("failed to persist progress: %v", err))
		}
		s.lm.Lock()
		s.lastSave[id] = saveMark{at: time.Now(), percent: job.Progress.Percent}
		s.lm.Unlock()
		return models.ResultOK("progress persisted", job)
	}

	// Engine finished: final progress is always saved before the status
	// change, so a crash can leave progress ahead of status but never
	// status ahead of final progress.
	job.Progress = eng.Progress()
	s.checkConcurrentModification(id, baseVersion)
	job.Touch()
	if err := s.store.Update(job); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Failed to persist final progress")
	}

	switch eng.Outcome() {
	case models.JobStatusCompleted:
		job.Status = models.JobStatusCompleted
	case models.JobStatusFailed:
		job.Status = models.JobStatusFailed
		if s.recorder != nil {
			s.recorder.Record(models.NewErrorEvent(models.SeverityMedium, "engine",
				"transfer failed: "+job.Progress.StatusDetail).WithJob(job.ID, job.Name))
		}
	default:
		// Stopped without a terminal outcome.
		job.Status = models.JobStatusPaused
	}
	job.Touch()
	if err := s.store.Update(job); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Failed to persist terminal status")
	}

	s.dropEngine(id)
	s.markDirty()
	s.logger.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("Job reached terminal state")
	return models.ResultOK("job finished", job)
}

// CleanupStoppedEngines drops engines that have not been running for
// longer than the reaper age. A freshly stopped engine first gets a
// stop time; a later pass removes it.
func (s *Supervisor) CleanupStoppedEngines() {
	s.lrw.Lock()
	defer s.lrw.Unlock()

	now := time.Now()
	s.lm.Lock()
	defer s.lm.Unlock()

	for id, eng := range s.engines {
		if eng.IsRunning() {
			delete(s.stopTimes, id)
			continue
		}
		stopAt, recorded := s.stopTimes[id]
		if !recorded {
			s.stopTimes[id] = now
			continue
		}
		if now.Sub(stopAt) > s.reaperAge() {
			delete(s.engines, id)
			delete(s.lastSave, id)
			delete(s.stopTimes, id)
			s.logger.Debug().Str("job_id", id).Msg("Reaped stopped engine")
		}
	}
}

func (s *Supervisor) reaperAge() time.Duration {
	if s.cfg.Monitor.ReaperAge > 0 {
		return s.cfg.Monitor.ReaperAge
	}
	return 300 * time.Second
}

// ListJobs returns all jobs with live progress merged in, served from a
// short-lived cache that any write invalidates.
func (s *Supervisor) ListJobs() []*models.Job {
	s.lrw.RLock()
	defer s.lrw.RUnlock()

	s.lm.Lock()
	ttl := s.cfg.Store.ListCacheTTL
	if ttl == 0 {
		ttl = time.Second
	}
	if !s.cacheDirty && time.Since(s.cacheAt) <= ttl && s.cache != nil {
		cached := s.cache
		s.lm.Unlock()
		return cached
	}
	s.lm.Unlock()

	var jobs []*models.Job
	for _, stored := range s.store.LoadAll() {
		if job, ok := s.jobStatusLocked(stored.ID); ok {
			jobs = append(jobs, job)
		}
	}

	s.lm.Lock()
	s.cache = jobs
	s.cacheAt = time.Now()
	s.cacheDirty = false
	s.lm.Unlock()
	return jobs
}

// HasRunningEngines reports whether any engine is live. The monitor
// uses it to pick its sleep interval.
func (s *Supervisor) HasRunningEngines() bool {
	s.lm.Lock()
	defer s.lm.Unlock()
	for _, eng := range s.engines {
		if eng.IsRunning() {
			return true
		}
	}
	return false
}

// EngineCount returns the number of tracked engines, running or not.
func (s *Supervisor) EngineCount() int {
	s.lm.Lock()
	defer s.lm.Unlock()
	return len(s.engines)
}

// Health summarizes supervisor and error-log state.
func (s *Supervisor) Health() *models.HealthSummary {
	s.lrw.RLock()
	defer s.lrw.RUnlock()

	summary := &models.HealthSummary{TotalJobs: s.store.Count()}

	s.lm.Lock()
	summary.LiveEngines = len(s.engines)
	for _, eng := range s.engines {
		if eng.IsRunning() {
			summary.RunningJobs++
		}
	}
	s.lm.Unlock()

	if s.errStats != nil {
		if stats, err := s.errStats.Stats(); err == nil {
			summary.UnresolvedErrors = stats.Unresolved
			summary.CriticalErrors = stats.BySeverity[models.SeverityCritical]
			summary.Errors24h = stats.Recent24h
		}
	}
	return summary
}

// shouldPersistProgress implements the write-amplification throttle:
// persist on the first save for an id, after 2 seconds, or when the
// integer percent moved by at least one.
func (s *Supervisor) shouldPersistProgress(id string, percent int) bool {
	s.lm.Lock()
	defer s.lm.Unlock()

	mark, seen := s.lastSave[id]
	if !seen {
		return true
	}
	interval := s.cfg.Store.PersistInterval
	if interval == 0 {
		interval = 2 * time.Second
	}
	if time.Since(mark.at) >= interval {
		return true
	}
	delta := percent - mark.percent
	if delta < 0 {
		delta = -delta
	}
	minDelta := int(s.cfg.Store.PersistPercent)
	if minDelta == 0 {
		minDelta = 1
	}
	return delta >= minDelta
}

// checkConcurrentModification warns when the stored version moved under
// an in-flight operation. Last write wins; the single writer serializes
// actual persistence, so this is a safety net, not an abort.
func (s *Supervisor) checkConcurrentModification(id string, baseVersion int64) {
	current := s.store.CurrentVersion(id)
	if current >= 0 && current != baseVersion {
		s.logger.Warn().
			Str("job_id", id).
			Int64("expected_version", baseVersion).
			Int64("stored_version", current).
			Msg("Concurrent job modification detected, last write wins")
	}
}

func (s *Supervisor) breakerFor(tool string) *recovery.Breaker {
	s.lm.Lock()
	defer s.lm.Unlock()
	brk, ok := s.breakers[tool]
	if !ok {
		brk = recovery.NewBreaker(tool, 3, 30*time.Second, s.logger)
		s.breakers[tool] = brk
	}
	return brk
}

func (s *Supervisor) dropEngine(id string) {
	s.lm.Lock()
	delete(s.engines, id)
	delete(s.lastSave, id)
	delete(s.stopTimes, id)
	s.lm.Unlock()
}

func (s *Supervisor) markDirty() {
	s.lm.Lock()
	s.cacheDirty = true
	s.lm.Unlock()
}
