// -----------------------------------------------------------------------
// Last Modified: Tuesday, 6th October 2026 10:05:31 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"net/http"

	"github.com/ternarybob/leadwatch/internal/models"
)

// SessionState owns the durable credential pair and the change broadcast
type SessionState interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	Credentials(ctx context.Context) models.Credentials
	WorkspaceID(ctx context.Context) string

	// Store persists the pair. An empty refresh token keeps the stored one.
	Store(ctx context.Context, accessToken, refreshToken string) error
	SetWorkspaceID(ctx context.Context, workspaceID string) error

	// Clear removes both credentials. Idempotent.
	Clear(ctx context.Context) error

	// ClearAndRedirect clears both credentials and emits the login-required event. Idempotent.
	ClearAndRedirect(ctx context.Context, reason string)

	// Redirect emits the login-required event without clearing anything
	Redirect(ctx context.Context, reason string)

	// NotifyUpdated broadcasts a credentials-updated event
	NotifyUpdated(ctx context.Context, source string, rotated bool)
}

// Doer sends authenticated requests. It is implemented by the session gateway.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// AuthService is the credential lifecycle exposed to the CLI and bridge
type AuthService interface {
	Doer
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.TokenResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	RenewCredential(ctx context.Context) (string, bool)
	ClearAndRedirect(ctx context.Context)
}
