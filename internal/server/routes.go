package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - bridge status

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobsHandler.ListJobsHandler) // GET - active jobs
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)                 // POST /{id}/cancel

	// API routes - System
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.Handle("/metrics", s.app.Metrics.Handler())

	return mux
}

// handleJobRoutes serves /api/jobs/{id}/cancel, the only action on a single job
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if _, action, ok := strings.Cut(rest, "/"); ok && action == "cancel" {
		s.app.JobsHandler.CancelJobHandler(w, r)
		return
	}
	http.NotFound(w, r)
}
