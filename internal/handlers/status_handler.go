package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
)

// StatusHandler serves what the bridge reports about itself: session
// status, build version and liveness
type StatusHandler struct {
	status  StatusProvider
	clients ClientCounter
	logger  arbor.ILogger
}

// NewStatusHandler creates a StatusHandler. clients may be nil.
func NewStatusHandler(status StatusProvider, clients ClientCounter, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{status: status, clients: clients, logger: logger}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.status.GetStatus(r.Context()))
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler handles GET /api/health. The bridge is healthy while it
// answers; the body says whether anyone is signed in and listening.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	clients := 0
	if h.clients != nil {
		clients = h.clients.ClientCount()
	}
	st := h.status.GetStatus(r.Context())
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"authenticated": st.Authenticated,
		"active_jobs":   st.ActiveJobs,
		"clients":       clients,
		"goroutines":    common.GetGoroutineCount(),
	})
}
