package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/ternarybob/leadwatch/internal/services/status"
)

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/jobs":
			_, _ = io.WriteString(w, `{"data":{"jobs":[{"job_id":"j1","kind":"export","status":"queued","progress":0,"lead_id":null,"created_at":null}]},"error":null}`)
		case "/v1/jobs/j1/cancel":
			_, _ = io.WriteString(w, `{"data":null,"error":{"code":"FORBIDDEN","message":"Superadmin only"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	cfg := common.NewDefaultConfig()
	cfg.API.BaseURL = backend.URL
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Jobs.ReloadSchedule = ""

	a, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Session.Store(context.Background(), "a1", "r1"))

	return New(a), a
}

func TestStatusRoute(t *testing.T) {
	s, a := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var got status.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, a.InstanceID, got.InstanceID)
	assert.Equal(t, "1", got.WorkspaceID)
}

func TestJobsRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?reload=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view monitor.JobListView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Jobs, 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/j1/cancel", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, monitor.MessageSuperadminOnly, body["error"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflightAndRecovery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/jobs", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	panicking := s.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec = httptest.NewRecorder()
	panicking.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestRunServesUntilCancelled(t *testing.T) {
	s, a := newTestServer(t)
	a.Config.Server.Host = "127.0.0.1"
	a.Config.Server.Port = 0
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	resp, err := http.Get("http://" + s.Addr() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `leadwatch_http_requests_total{method="GET",route="/api/status",status="200"} 1`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/jobs/{id}/cancel", routeLabel("/api/jobs/abc/cancel"))
	assert.Equal(t, "/api/jobs/{id}", routeLabel("/api/jobs/abc"))
	assert.Equal(t, "/api/status", routeLabel("/api/status"))
	assert.Equal(t, "other", routeLabel("/favicon.ico"))
}
