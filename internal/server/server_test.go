package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/common"
	"github.com/molotovsingh/personal-backup-tool/internal/fanout"
	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/settings"
	"github.com/molotovsingh/personal-backup-tool/internal/storage"
	"github.com/molotovsingh/personal-backup-tool/internal/supervisor"
)

type stubEngine struct {
	mu      sync.Mutex
	running bool
}

func (e *stubEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
	return nil
}

func (e *stubEngine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.running
	e.running = false
	return was
}

func (e *stubEngine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *stubEngine) Progress() models.Progress { return models.Progress{} }
func (e *stubEngine) Outcome() models.JobStatus { return "" }
func (e *stubEngine) Tool() string              { return "rsync" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	db, err := storage.NewBadgerDB(filepath.Join(dir, "logs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	errors := storage.NewErrorLog(db, logger)
	logs := storage.NewLogStore(db, logger)

	store, err := storage.NewJobStore(filepath.Join(dir, "jobs.yaml"), 1, logger, errors)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := settings.NewService(filepath.Join(dir, "settings.yaml"), logger)
	require.NoError(t, err)

	sup := supervisor.New(store, common.NewPaths(dir), supervisor.Config{}, logger, errors, errors)
	sup.SetEngineFactory(func(job *models.Job) (supervisor.Engine, error) {
		return &stubEngine{}, nil
	})

	return New(Deps{
		Config:     common.NewDefaultConfig(),
		Logger:     logger,
		Supervisor: sup,
		Settings:   svc,
		Errors:     errors,
		Logs:       logs,
		Hub:        fanout.NewHub(logger, 0),
		Version:    "test",
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func createTestJob(t *testing.T, srv *Server, source string) string {
	t.Helper()
	rec := doJSON(t, srv, "POST", "/api/jobs", map[string]interface{}{
		"name":   "photos",
		"source": source,
		"dest":   filepath.Join(t.TempDir(), "dest"),
		"type":   "rsync",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Job models.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Job.ID)
	return resp.Job.ID
}

func TestServer_JobLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createTestJob(t, srv, t.TempDir())

	rec := doJSON(t, srv, "GET", "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	rec = doJSON(t, srv, "POST", "/api/jobs/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Duplicate start is a conflict
	rec = doJSON(t, srv, "POST", "/api/jobs/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, "GET", "/api/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusRunning, job.Status)

	rec = doJSON(t, srv, "POST", "/api/jobs/"+id+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, "DELETE", "/api/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, "GET", "/api/jobs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateJobValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/jobs", map[string]interface{}{
		"name": "", "source": "/a", "dest": "/b", "type": "rsync",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, "POST", "/api/jobs", map[string]interface{}{"bad": "json-shape"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_DeleteRunningJobRejected(t *testing.T) {
	srv := newTestServer(t)
	id := createTestJob(t, srv, t.TempDir())

	require.Equal(t, http.StatusOK, doJSON(t, srv, "POST", "/api/jobs/"+id+"/start", nil).Code)
	assert.Equal(t, http.StatusConflict, doJSON(t, srv, "DELETE", "/api/jobs/"+id, nil).Code)
}

func TestServer_Settings(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current models.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, 10, current.MaxRetryAttempts)

	current.DefaultBandwidthLimit = 2500
	rec = doJSON(t, srv, "PUT", "/api/settings", current)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, "GET", "/api/settings", nil)
	var updated models.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 2500, updated.DefaultBandwidthLimit)
}

func TestServer_SettingsRejectInvalid(t *testing.T) {
	srv := newTestServer(t)

	current := srv.deps.Settings.Get()
	current.VerificationMode = "turbo"
	rec := doJSON(t, srv, "PUT", "/api/settings", current)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ErrorsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	srv.deps.Errors.Record(models.NewErrorEvent(models.SeverityHigh, "engine", "boom"))

	rec := doJSON(t, srv, "GET", "/api/errors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count  int                  `json:"count"`
		Errors []*models.ErrorEvent `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)

	rec = doJSON(t, srv, "POST", "/api/errors/"+listing.Errors[0].ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, "GET", "/api/errors?resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Count)

	rec = doJSON(t, srv, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, "GET", "/api/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backupd")
}

func TestServer_UnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, "GET", "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
