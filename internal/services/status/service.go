package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
)

// AppState represents whether the bridge holds a usable session
type AppState string

const (
	StateSignedIn  AppState = "signed_in"
	StateSignedOut AppState = "signed_out"
)

// Status is served on /api/status and sent as the first websocket message
type Status struct {
	State         AppState  `json:"state"`
	Authenticated bool      `json:"authenticated"`
	WorkspaceID   string    `json:"workspace_id"`
	InstanceID    string    `json:"instance_id"`
	ActiveJobs    int       `json:"active_jobs"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service tracks application status from session and job events
type Service struct {
	mu           sync.RWMutex
	state        AppState
	reason       string
	activeJobs   int
	instanceID   string
	session      interfaces.SessionState
	eventService interfaces.EventService
	logger       arbor.ILogger
	unsubscribe  []func()
}

// NewService creates a status service. The initial state follows the stored credentials.
func NewService(ctx context.Context, eventService interfaces.EventService, session interfaces.SessionState, instanceID string, logger arbor.ILogger) *Service {
	state := StateSignedOut
	if session.AccessToken(ctx) != "" {
		state = StateSignedIn
	}
	return &Service{
		state:        state,
		instanceID:   instanceID,
		session:      session,
		eventService: eventService,
		logger:       logger,
	}
}

// GetState returns the current application state (thread-safe)
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the application state and broadcasts the change
func (s *Service) SetState(ctx context.Context, state AppState, reason string) {
	s.mu.Lock()
	oldState := s.state
	s.state = state
	s.reason = reason
	s.mu.Unlock()

	if oldState != state {
		s.logger.Info().
			Str("old_state", string(oldState)).
			Str("new_state", string(state)).
			Str("reason", reason).
			Msg("Application state changed")
	}

	err := s.eventService.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: s.GetStatus(ctx),
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("Status change not published")
	}
}

// GetStatus returns the full status snapshot
func (s *Service) GetStatus(ctx context.Context) Status {
	workspace := s.session.WorkspaceID(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		State:         s.state,
		Authenticated: s.state == StateSignedIn,
		WorkspaceID:   workspace,
		InstanceID:    s.instanceID,
		ActiveJobs:    s.activeJobs,
		Reason:        s.reason,
		Timestamp:     time.Now(),
	}
}

// SubscribeToSessionEvents follows sign-in changes and job list reloads
func (s *Service) SubscribeToSessionEvents() error {
	subscriptions := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventCredentialsUpdated: func(ctx context.Context, event interfaces.Event) error {
			s.SetState(ctx, StateSignedIn, "")
			return nil
		},
		interfaces.EventLoginRequired: func(ctx context.Context, event interfaces.Event) error {
			reason := ""
			if payload, ok := event.Payload.(interfaces.LoginRequiredPayload); ok {
				reason = payload.Reason
			}
			s.SetState(ctx, StateSignedOut, reason)
			return nil
		},
		interfaces.EventJobsReloaded: func(ctx context.Context, event interfaces.Event) error {
			payload, ok := event.Payload.(interfaces.JobsReloadedPayload)
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.activeJobs = len(payload.Jobs)
			s.mu.Unlock()
			return nil
		},
	}

	for eventType, handler := range subscriptions {
		unsubscribe, err := s.eventService.Subscribe(eventType, handler)
		if err != nil {
			s.Close()
			return err
		}
		s.mu.Lock()
		s.unsubscribe = append(s.unsubscribe, unsubscribe)
		s.mu.Unlock()
	}

	s.logger.Debug().Msg("Status service subscribed to session events")
	return nil
}

// Close drops all event subscriptions
func (s *Service) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}
