package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/supervisor"
)

// ListJobsHandler returns every job with live progress merged in.
func (s *Server) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Supervisor.ListJobs()
	if jobs == nil {
		jobs = []*models.Job{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CreateJobHandler creates a new pending job.
func (s *Server) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req supervisor.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	WriteResult(w, s.deps.Supervisor.CreateJob(req))
}

// GetJobHandler returns one job.
func (s *Server) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := jobIDFromPath(r.URL.Path, "")
	job, ok := s.deps.Supervisor.GetJobStatus(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// StartJobHandler launches a transfer for a job.
func (s *Server) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	id := jobIDFromPath(r.URL.Path, "/start")
	WriteResult(w, s.deps.Supervisor.StartJob(id))
}

// StopJobHandler stops a running transfer, pausing the job.
func (s *Server) StopJobHandler(w http.ResponseWriter, r *http.Request) {
	id := jobIDFromPath(r.URL.Path, "/stop")
	WriteResult(w, s.deps.Supervisor.StopJob(id))
}

// DeleteJobHandler removes a job that is not running.
func (s *Server) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	id := jobIDFromPath(r.URL.Path, "")
	WriteResult(w, s.deps.Supervisor.DeleteJob(id))
}

// JobLogsHandler returns indexed transfer log lines for a job.
// Query params: level (error|warning|info|debug), limit (default 200).
func (s *Server) JobLogsHandler(w http.ResponseWriter, r *http.Request) {
	id := jobIDFromPath(r.URL.Path, "/logs")

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5000 {
			limit = n
		}
	}
	level := models.LogLevel(r.URL.Query().Get("level"))

	entries, err := s.deps.Logs.ByJob(id, level, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*models.TransferLogEntry{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  id,
		"entries": entries,
		"count":   len(entries),
	})
}

// GetSettingsHandler returns the global settings.
func (s *Server) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Settings.Get())
}

// UpdateSettingsHandler replaces the global settings.
func (s *Server) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	updated := s.deps.Settings.Get()
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.deps.Settings.Update(updated); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// ListErrorsHandler returns recent error events.
// Query params: resolved (true|false), limit (default 100).
func (s *Server) ListErrorsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var resolved *bool
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		resolved = &b
	}

	events, err := s.deps.Errors.Recent(limit, resolved)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.ErrorEvent{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"errors": events,
		"count":  len(events),
	})
}

// ErrorStatsHandler returns aggregate error counts.
func (s *Server) ErrorStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Errors.Stats()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ResolveErrorHandler marks an error event resolved.
func (s *Server) ResolveErrorHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/errors/")
	id = strings.TrimSuffix(id, "/resolve")
	id = strings.Trim(id, "/")

	if err := s.deps.Errors.MarkResolved(id); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"id":     id,
	})
}

// VersionHandler returns the service version.
func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "backupd",
		"version": s.deps.Version,
	})
}

// HealthHandler reports supervisor and error-log health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Supervisor.Health()
	status := "healthy"
	var degraded []string
	if s.deps.Degrader != nil {
		degraded = s.deps.Degrader.DegradedComponents()
	}
	if health.CriticalErrors > 0 || len(degraded) > 0 {
		status = "degraded"
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"health":      health,
		"degraded":    degraded,
		"subscribers": s.deps.Hub.Count(),
	})
}

// NotFoundHandler handles unmatched API routes.
func (s *Server) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}
