// -----------------------------------------------------------------------
// Job Store - durable YAML catalog of jobs with atomic writes, backup
// on write, corruption recovery and a single serialized writer
// -----------------------------------------------------------------------

package storage

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
)

// jobsDocument is the on-disk shape: a single top-level jobs list.
// Elements are decoded individually so one bad record does not poison
// the whole file.
type jobsDocument struct {
	Jobs []yaml.Node `yaml:"jobs"`
}

// JobStore owns the durable form of every job. Reads are synchronous
// against the in-memory map; writes are enqueued to a background writer
// that drains an unbounded FIFO and is drained synchronously on Close.
type JobStore struct {
	path     string
	logger   arbor.ILogger
	recorder recovery.Recorder
	retryCfg recovery.RetryConfig

	mu   sync.RWMutex
	jobs map[string]*models.Job

	qmu    sync.Mutex
	qcond  *sync.Cond
	queue  [][]byte
	closed bool
	done   chan struct{}
}

// NewJobStore opens (or creates) the store at path, recovering from a
// corrupt document via the .bak sibling. recorder may be nil.
func NewJobStore(path string, writeRetries int, logger arbor.ILogger, recorder recovery.Recorder) (*JobStore, error) {
	s := &JobStore{
		path:     path,
		logger:   logger,
		recorder: recorder,
		retryCfg: recovery.RetryConfig{
			MaxRetries:   writeRetries,
			InitialDelay: 100 * time.Millisecond,
			Component:    "jobstore",
			LogErrors:    true,
		},
		jobs: make(map[string]*models.Job),
		done: make(chan struct{}),
	}
	s.qcond = sync.NewCond(&s.qmu)

	s.loadFromDisk()

	go s.writerLoop()
	return s, nil
}

// loadFromDisk reads the canonical document, falling back to the backup
// on corruption. Both unreadable yields an empty catalog and a Critical
// event.
func (s *JobStore) loadFromDisk() {
	jobs, err := readDocument(s.path)
	if err == nil {
		s.install(jobs)
		return
	}
	if os.IsNotExist(err) {
		return
	}

	s.logger.Warn().Str("path", s.path).Err(err).Msg("Job store unreadable, recovering from backup")
	jobs, bakErr := readDocument(s.path + ".bak")
	if bakErr == nil {
		s.install(jobs)
		return
	}

	s.logger.Error().Str("path", s.path).Err(bakErr).Msg("Backup also unreadable, starting with empty catalog")
	if s.recorder != nil {
		s.recorder.Record(models.ErrorEventFromError(err, models.SeverityCritical, "jobstore",
			"job catalog and its backup are both unreadable"))
	}
}

func (s *JobStore) install(jobs []*models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
}

// readDocument parses a jobs file, skipping records that fail to decode.
func readDocument(path string) ([]*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc jobsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var jobs []*models.Job
	for i := range doc.Jobs {
		var job models.Job
		if err := doc.Jobs[i].Decode(&job); err != nil || job.ID == "" {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Save persists a new job. Fails if the id already exists.
func (s *JobStore) Save(job *models.Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snapshot)
	return nil
}

// Update persists a mutation of an existing job. A write carrying a
// version lower than the stored record is stale and ignored.
func (s *JobStore) Update(job *models.Job) error {
	s.mu.Lock()
	existing, exists := s.jobs[job.ID]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", job.ID)
	}
	if job.Version < existing.Version {
		s.mu.Unlock()
		s.logger.Warn().
			Str("job_id", job.ID).
			Int64("stored_version", existing.Version).
			Int64("write_version", job.Version).
			Msg("Ignoring stale job write")
		return nil
	}
	s.jobs[job.ID] = job.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snapshot)
	return nil
}

// Delete removes a job. Idempotent once the job is absent.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	if _, exists := s.jobs[id]; !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.jobs, id)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snapshot)
	return nil
}

// Get returns a copy of one job.
func (s *JobStore) Get(id string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// CurrentVersion returns the stored version for an id, or -1 when
// absent. The supervisor uses it for its concurrent-modification check.
func (s *JobStore) CurrentVersion(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if job, ok := s.jobs[id]; ok {
		return job.Version
	}
	return -1
}

// LoadAll returns copies of every job, ordered by creation time.
func (s *JobStore) LoadAll() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored jobs.
func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Clear removes every job.
func (s *JobStore) Clear() {
	s.mu.Lock()
	s.jobs = make(map[string]*models.Job)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.enqueue(snapshot)
}

// snapshotLocked marshals the current catalog. Caller holds s.mu.
func (s *JobStore) snapshotLocked() []byte {
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	doc := struct {
		Jobs []*models.Job `yaml:"jobs"`
	}{Jobs: jobs}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal job catalog")
		return nil
	}
	return data
}

// enqueue appends one serialized document snapshot to the writer FIFO.
func (s *JobStore) enqueue(snapshot []byte) {
	if snapshot == nil {
		return
	}
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		// Late write after shutdown: done inline so nothing is lost.
		s.writeWithRetry(snapshot)
		return
	}
	s.queue = append(s.queue, snapshot)
	s.qcond.Signal()
	s.qmu.Unlock()
}

// writerLoop is the store's single writer, draining the FIFO in order.
func (s *JobStore) writerLoop() {
	defer close(s.done)
	for {
		s.qmu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.qcond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.qmu.Unlock()
			return
		}
		snapshot := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		s.writeWithRetry(snapshot)
	}
}

// Close drains the write queue synchronously and stops the writer.
func (s *JobStore) Close() error {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.qcond.Broadcast()
	s.qmu.Unlock()

	<-s.done
	return nil
}

func (s *JobStore) writeWithRetry(snapshot []byte) {
	err := recovery.Retry(s.retryCfg, s.logger, s.recorder, "persist job catalog", func() error {
		return s.writeAtomic(snapshot)
	})
	if err != nil {
		s.logger.Error().Str("path", s.path).Err(err).Msg("Job catalog write failed permanently")
	}
}

// writeAtomic performs one physical write: copy the current file to
// .bak, write the new contents to .tmp, take the OS file lock, rename
// .tmp over the canonical file, release the lock. The .tmp is removed
// on any failure.
func (s *JobStore) writeAtomic(snapshot []byte) (err error) {
	bakPath := s.path + ".bak"
	tmpPath := s.path + ".tmp"
	lockPath := s.path + ".lock"

	if copyErr := copyFile(s.path, bakPath); copyErr != nil && !os.IsNotExist(copyErr) {
		return fmt.Errorf("failed to write backup: %w", copyErr)
	}

	if err = os.WriteFile(tmpPath, snapshot, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	lock := flock.New(lockPath)
	if err = lock.Lock(); err != nil {
		return fmt.Errorf("failed to take store lock: %w", err)
	}
	defer lock.Unlock()

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to commit job catalog: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
