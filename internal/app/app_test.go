package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/monitor"
)

// newTestApp opens an app against backend with storage in a temp dir
func newTestApp(t *testing.T, backend http.Handler) *App {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.API.RateLimit = 0
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Jobs.ReloadSchedule = ""
	cfg.Monitor.LogPollInterval = "10ms"

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppJobListReloadUpdatesStatus(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.Header.Get("X-Workspace-Id"))
		_, _ = io.WriteString(w, `{"data":{"jobs":[{"job_id":"j1","kind":"verify","status":"running","progress":10,"lead_id":4,"created_at":null}]},"error":null}`)
	}))
	ctx := context.Background()
	require.NoError(t, a.Session.Store(ctx, "a1", "r1"))

	require.NoError(t, a.JobList.Load(ctx))
	require.Eventually(t, func() bool {
		return a.StatusService.GetStatus(ctx).ActiveJobs == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAppLogMonitorPublishesSnapshots(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"job_id":"j1","status":"succeeded","progress":100,"log_lines":["done"],"log_entries":[]},"error":null}`)
	}))
	ctx := context.Background()
	require.NoError(t, a.Session.Store(ctx, "a1", "r1"))

	var mu sync.Mutex
	var snaps []monitor.Snapshot
	_, err := a.EventService.Subscribe(interfaces.EventJobSnapshot, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, event.Payload.(monitor.Snapshot))
		return nil
	})
	require.NoError(t, err)

	m := a.NewLogMonitor()
	m.Watch(a.Context(), "j1")
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not reach terminal status")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range snaps {
			if s.Status == models.JobStatusSucceeded {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAppWithoutCredentialsRequiresLogin(t *testing.T) {
	calls := 0
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	required := make(chan interfaces.LoginRequiredPayload, 1)
	_, err := a.Session.OnLoginRequired(func(p interfaces.LoginRequiredPayload) { required <- p })
	require.NoError(t, err)

	err = a.JobList.Load(context.Background())
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	select {
	case p := <-required:
		assert.Equal(t, "/login", p.Path)
	case <-time.After(time.Second):
		t.Fatal("no login-required event")
	}
	assert.Zero(t, calls)
}
