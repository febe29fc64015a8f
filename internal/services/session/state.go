// -----------------------------------------------------------------------
// Session state - durable credential pair with change broadcast
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// Storage keys
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyWorkspaceID  = "workspace_id"
)

// State is the single process-wide owner of the credential pair.
// Reads go straight to durable storage so separate processes sharing the
// store observe each other's writes.
type State struct {
	storage          interfaces.KeyValueStorage
	events           interfaces.EventService
	loginPath        string
	defaultWorkspace string
	logger           arbor.ILogger
}

// NewState creates the session state over the given storage
func NewState(storage interfaces.KeyValueStorage, events interfaces.EventService, loginPath, defaultWorkspace string, logger arbor.ILogger) *State {
	return &State{
		storage:          storage,
		events:           events,
		loginPath:        loginPath,
		defaultWorkspace: defaultWorkspace,
		logger:           logger,
	}
}

func (s *State) read(ctx context.Context, key string) string {
	value, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read session key, treating as absent")
		}
		return ""
	}
	return value
}

// AccessToken returns the stored access credential, "" when absent
func (s *State) AccessToken(ctx context.Context) string {
	return s.read(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh credential, "" when absent
func (s *State) RefreshToken(ctx context.Context) string {
	return s.read(ctx, KeyRefreshToken)
}

// Credentials returns both credentials and the time the access credential was written
func (s *State) Credentials(ctx context.Context) models.Credentials {
	creds := models.Credentials{RefreshToken: s.RefreshToken(ctx)}
	if entry, err := s.storage.GetEntry(ctx, KeyAccessToken); err == nil {
		creds.AccessToken = entry.Value
		creds.UpdatedAt = entry.UpdatedAt
	}
	return creds
}

// WorkspaceID returns the stored workspace, falling back to the configured one
func (s *State) WorkspaceID(ctx context.Context) string {
	if ws := s.read(ctx, KeyWorkspaceID); ws != "" {
		return ws
	}
	return s.defaultWorkspace
}

// SetWorkspaceID persists the workspace used to scope API calls
func (s *State) SetWorkspaceID(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return s.storage.Delete(ctx, KeyWorkspaceID)
	}
	return s.storage.Set(ctx, KeyWorkspaceID, workspaceID, "workspace scope for API calls")
}

// Store persists a new credential pair in one transaction.
// An empty refreshToken leaves the stored refresh credential in place.
func (s *State) Store(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	values := map[string]string{KeyAccessToken: accessToken}
	if refreshToken != "" {
		values[KeyRefreshToken] = refreshToken
	}

	if err := s.storage.SetMany(ctx, values); err != nil {
		s.logger.Error().Err(err).Msg("Failed to store credentials")
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	s.logger.Debug().Bool("refresh_rotated", refreshToken != "").Msg("Stored credentials")
	return nil
}

// Clear removes both credentials. Idempotent.
func (s *State) Clear(ctx context.Context) error {
	if err := s.storage.DeleteMany(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear credentials")
		return err
	}
	return nil
}

// ClearAndRedirect clears both credentials and emits the login-required event.
// Storage failures are logged: the redirect happens regardless.
func (s *State) ClearAndRedirect(ctx context.Context, reason string) {
	_ = s.Clear(ctx)
	s.Redirect(ctx, reason)
}

// Redirect emits the login-required event without touching storage
func (s *State) Redirect(ctx context.Context, reason string) {
	s.logger.Warn().Str("reason", reason).Str("path", s.loginPath).Msg("Authentication required")

	if s.events == nil {
		return
	}
	// Detached context: the caller's request context is usually already done
	err := s.events.Publish(context.WithoutCancel(ctx), interfaces.Event{
		Type:    interfaces.EventLoginRequired,
		Payload: interfaces.LoginRequiredPayload{Path: s.loginPath, Reason: reason},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish login-required event")
	}
}

// NotifyUpdated broadcasts that a new credential pair was stored
func (s *State) NotifyUpdated(ctx context.Context, source string, rotated bool) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(context.WithoutCancel(ctx), interfaces.Event{
		Type: interfaces.EventCredentialsUpdated,
		Payload: interfaces.CredentialsUpdatedPayload{
			Source:    source,
			Rotated:   rotated,
			UpdatedAt: time.Now(),
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish credentials-updated event")
	}
}

// OnCredentialsUpdated registers fn to run after every credential change.
// The returned func unsubscribes.
func (s *State) OnCredentialsUpdated(fn func(interfaces.CredentialsUpdatedPayload)) (func(), error) {
	if s.events == nil {
		return func() {}, nil
	}
	return s.events.Subscribe(interfaces.EventCredentialsUpdated, func(ctx context.Context, event interfaces.Event) error {
		if payload, ok := event.Payload.(interfaces.CredentialsUpdatedPayload); ok {
			fn(payload)
		}
		return nil
	})
}

// OnLoginRequired registers fn to run whenever authentication is dead.
func (s *State) OnLoginRequired(fn func(interfaces.LoginRequiredPayload)) (func(), error) {
	if s.events == nil {
		return func() {}, nil
	}
	return s.events.Subscribe(interfaces.EventLoginRequired, func(ctx context.Context, event interfaces.Event) error {
		if payload, ok := event.Payload.(interfaces.LoginRequiredPayload); ok {
			fn(payload)
		}
		return nil
	})
}
