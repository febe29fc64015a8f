package status

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/events"
	"github.com/ternarybob/leadwatch/internal/services/session"
	"github.com/ternarybob/leadwatch/internal/storage/badger"
)

func newTestStatus(t *testing.T) (*Service, *session.State, interfaces.EventService) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	eventService := events.NewService(logger)
	t.Cleanup(func() { _ = eventService.Close() })

	state := session.NewState(badger.NewKVStorage(db, logger), eventService, "/login", "3", logger)
	service := NewService(context.Background(), eventService, state, "inst-1", logger)
	require.NoError(t, service.SubscribeToSessionEvents())
	t.Cleanup(service.Close)
	return service, state, eventService
}

func TestStatusFollowsSessionEvents(t *testing.T) {
	service, state, eventService := newTestStatus(t)
	ctx := context.Background()

	changes := make(chan Status, 8)
	_, err := eventService.Subscribe(interfaces.EventStatusChanged, func(ctx context.Context, event interfaces.Event) error {
		if s, ok := event.Payload.(Status); ok {
			changes <- s
		}
		return nil
	})
	require.NoError(t, err)

	initial := service.GetStatus(ctx)
	assert.Equal(t, StateSignedOut, initial.State)
	assert.False(t, initial.Authenticated)
	assert.Equal(t, "3", initial.WorkspaceID)
	assert.Equal(t, "inst-1", initial.InstanceID)

	require.NoError(t, state.Store(ctx, "a1", "r1"))
	state.NotifyUpdated(ctx, "login", true)
	select {
	case s := <-changes:
		assert.True(t, s.Authenticated)
	case <-time.After(time.Second):
		t.Fatal("no status change after login")
	}

	state.ClearAndRedirect(ctx, "refresh failed")
	select {
	case s := <-changes:
		assert.Equal(t, StateSignedOut, s.State)
		assert.Equal(t, "refresh failed", s.Reason)
	case <-time.After(time.Second):
		t.Fatal("no status change after redirect")
	}
}

func TestStatusCountsActiveJobs(t *testing.T) {
	service, _, eventService := newTestStatus(t)
	ctx := context.Background()

	require.NoError(t, eventService.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobsReloaded,
		Payload: interfaces.JobsReloadedPayload{Jobs: []models.Job{{ID: "a"}, {ID: "b"}}, LoadedAt: time.Now()},
	}))
	assert.Equal(t, 2, service.GetStatus(ctx).ActiveJobs)
}

func TestStatusStartsSignedInWithStoredCredentials(t *testing.T) {
	_, state, eventService := newTestStatus(t)
	ctx := context.Background()
	require.NoError(t, state.Store(ctx, "a1", "r1"))

	service := NewService(ctx, eventService, state, "inst-2", arbor.NewLogger())
	assert.Equal(t, StateSignedIn, service.GetState())
}
