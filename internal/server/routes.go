package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (live job updates and notifications)
	mux.HandleFunc("/ws", s.HandleWebSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, s.ListJobsHandler, s.CreateJobHandler)
	})
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Settings
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"GET": s.GetSettingsHandler,
			"PUT": s.UpdateSettingsHandler,
		})
	})

	// API routes - Error events
	mux.HandleFunc("/api/errors", s.ListErrorsHandler)
	mux.HandleFunc("/api/errors/stats", s.ErrorStatsHandler)
	mux.HandleFunc("/api/errors/", s.handleErrorRoutes) // POST /{id}/resolve

	// API routes - System
	mux.HandleFunc("/api/version", s.VersionHandler)
	mux.HandleFunc("/api/health", s.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.NotFoundHandler)

	return mux
}

// handleJobRoutes routes job-related requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// POST /api/jobs/{id}/start
	if r.Method == "POST" && strings.HasSuffix(path, "/start") {
		s.StartJobHandler(w, r)
		return
	}

	// POST /api/jobs/{id}/stop
	if r.Method == "POST" && strings.HasSuffix(path, "/stop") {
		s.StopJobHandler(w, r)
		return
	}

	// GET /api/jobs/{id}/logs
	if r.Method == "GET" && strings.HasSuffix(path, "/logs") {
		s.JobLogsHandler(w, r)
		return
	}

	// GET/DELETE /api/jobs/{id}
	RouteResourceItem(w, r, s.GetJobHandler, nil, s.DeleteJobHandler)
}

// handleErrorRoutes routes error-event requests
func (s *Server) handleErrorRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/resolve") {
		s.ResolveErrorHandler(w, r)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

// jobIDFromPath extracts the job id from /api/jobs/{id}[/suffix]
func jobIDFromPath(path, suffix string) string {
	id := strings.TrimPrefix(path, "/api/jobs/")
	id = strings.TrimSuffix(id, suffix)
	return strings.Trim(id, "/")
}
