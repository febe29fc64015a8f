// -----------------------------------------------------------------------
// Session Gateway - bearer decoration with one transparent refresh-and-retry
// -----------------------------------------------------------------------

package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/httpclient"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/metrics"
	"github.com/ternarybob/leadwatch/internal/models"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// WorkspaceHeader scopes every API call to a tenant
const WorkspaceHeader = "X-Workspace-Id"

const refreshKey = "refresh"

// Gateway makes every outgoing request carry the current bearer credential and
// hides access-token expiry from callers.
type Gateway struct {
	config       *common.Config
	state        interfaces.SessionState
	httpClient   *http.Client
	limiter      *rate.Limiter
	shareRefresh bool
	refreshGroup singleflight.Group
	validate     *validator.Validate
	metrics      metrics.GatewayMetrics
	logger       arbor.ILogger
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics records renewal outcomes.
func WithMetrics(m metrics.GatewayMetrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithRateLimit sets the outbound request rate. Zero disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(g *Gateway) {
		g.limiter = newLimiter(requestsPerSecond)
	}
}

// WithSharedRefresh makes concurrent callers that hit 401 await a single refresh call.
func WithSharedRefresh(enabled bool) Option {
	return func(g *Gateway) {
		g.shareRefresh = enabled
	}
}

func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// NewGateway creates a gateway over the given session state
func NewGateway(config *common.Config, state interfaces.SessionState, opts ...Option) *Gateway {
	g := &Gateway{
		config:       config,
		state:        state,
		httpClient:   httpclient.NewDefaultHTTPClient(common.ParseDuration(config.API.Timeout, 15*time.Second)),
		limiter:      newLimiter(config.API.RateLimit),
		shareRefresh: config.Auth.ShareRefresh,
		validate:     validator.New(),
		metrics:      metrics.Noop{},
		logger:       common.GetLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// URL resolves an API path against the configured base URL and version prefix
func (g *Gateway) URL(path string) string {
	return g.config.APIURL(path)
}

// AccessCredential is a pure read of the stored access credential
func (g *Gateway) AccessCredential(ctx context.Context) string {
	return g.state.AccessToken(ctx)
}

// RefreshCredential is a pure read of the stored refresh credential
func (g *Gateway) RefreshCredential(ctx context.Context) string {
	return g.state.RefreshToken(ctx)
}

// ClearAndRedirect removes both credentials and emits login-required. Idempotent.
func (g *Gateway) ClearAndRedirect(ctx context.Context) {
	g.state.ClearAndRedirect(ctx, "cleared")
}

// Do sends req with the bearer credential attached.
// A 401 triggers one renewal and one resend; a second 401 is terminal.
// Any other response is returned unchanged for the caller to interpret.
// The request body must be replayable (GetBody) for the resend.
func (g *Gateway) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token := g.state.AccessToken(ctx)
	if token == "" {
		g.state.Redirect(ctx, "no access credential")
		return nil, models.ErrUnauthenticated
	}

	resp, err := g.send(ctx, req, token, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	httpclient.DrainAndClose(resp)

	g.logger.Debug().Str("url", req.URL.Path).Msg("Access credential rejected, renewing")

	newToken, err := g.renewAfterRejection(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = g.send(ctx, req, newToken, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		httpclient.DrainAndClose(resp)
		g.state.ClearAndRedirect(ctx, "renewed credential rejected")
		return nil, models.ErrUnauthenticated
	}
	return resp, nil
}

// renewAfterRejection skips the refresh call when another caller already
// replaced the rejected credential while this request was in flight.
func (g *Gateway) renewAfterRejection(ctx context.Context, rejected string) (string, error) {
	if g.shareRefresh {
		if current := g.state.AccessToken(ctx); current != "" && current != rejected {
			g.metrics.IncRefresh(metrics.RefreshReused)
			return current, nil
		}
	}
	return g.renewCredential(ctx)
}

func (g *Gateway) send(ctx context.Context, req *http.Request, token string, replay bool) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		switch {
		case req.GetBody != nil:
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			out.Body = body
		case replay:
			return nil, fmt.Errorf("request body for %s cannot be replayed", req.URL.Path)
		}
	}

	models.Credentials{AccessToken: token}.OAuth2().SetAuthHeader(out)
	if out.Header.Get(WorkspaceHeader) == "" {
		if ws := g.state.WorkspaceID(ctx); ws != "" {
			out.Header.Set(WorkspaceHeader, ws)
		}
	}

	return g.roundTrip(ctx, out)
}

// roundTrip is the single place a request leaves the process
func (g *Gateway) roundTrip(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && g.config.API.UserAgent != "" {
		req.Header.Set("User-Agent", g.config.API.UserAgent)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &models.NetworkError{Op: req.Method, URL: req.URL.String(), Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &models.NetworkError{Op: req.Method, URL: req.URL.String(), Err: err}
	}
	return resp, nil
}

// RenewCredential exchanges the refresh credential for a new access credential.
// On a refresh failure both credentials are cleared, login-required is emitted
// and ok is false. ok is also false when ctx ends first; the session is then
// left alone and the refresh still completes.
func (g *Gateway) RenewCredential(ctx context.Context) (string, bool) {
	token, err := g.renewCredential(ctx)
	return token, err == nil
}

// renewCredential returns models.ErrUnauthenticated when the refresh failed
// and ctx.Err() when the caller gave up waiting. The refresh call runs
// detached from ctx: abandoning it halfway could lose a rotated refresh
// credential the backend already issued.
func (g *Gateway) renewCredential(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)

	var ch <-chan singleflight.Result
	if g.shareRefresh {
		ch = g.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
			return g.renewResult(detached)
		})
	} else {
		own := make(chan singleflight.Result, 1)
		go func() {
			token, err := g.renewResult(detached)
			own <- singleflight.Result{Val: token, Err: err}
		}()
		ch = own
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		g.logger.Debug().Err(ctx.Err()).Msg("Caller left before credential renewal finished")
		return "", ctx.Err()
	}
}

func (g *Gateway) renewResult(ctx context.Context) (interface{}, error) {
	token, ok := g.renew(ctx)
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return token, nil
}

func (g *Gateway) renew(ctx context.Context) (string, bool) {
	refreshToken := g.state.RefreshToken(ctx)
	if refreshToken == "" {
		g.metrics.IncRefresh(metrics.RefreshMissing)
		g.state.ClearAndRedirect(ctx, "no refresh credential")
		return "", false
	}

	tokens, err := g.postTokens(ctx, "/auth/refresh", models.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		g.logger.Warn().Err(err).Msg("Credential refresh failed")
		g.metrics.IncRefresh(metrics.RefreshFailed)
		g.state.ClearAndRedirect(ctx, "refresh failed")
		return "", false
	}

	if err := g.state.Store(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		g.metrics.IncRefresh(metrics.RefreshStoreFailed)
		g.state.ClearAndRedirect(ctx, "refresh could not be stored")
		return "", false
	}
	g.state.NotifyUpdated(ctx, "refresh", tokens.RefreshToken != "")
	g.metrics.IncRefresh(metrics.RefreshOK)

	g.logger.Debug().Bool("rotated", tokens.RefreshToken != "").Msg("Access credential renewed")
	return tokens.AccessToken, true
}

// postTokens calls an unauthenticated token endpoint and requires an access token in the response
func (g *Gateway) postTokens(ctx context.Context, path string, body any) (*models.TokenResponse, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, g.URL(path), body)
	if err != nil {
		return nil, err
	}

	resp, err := g.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	var tokens models.TokenResponse
	if err := httpclient.DecodeEnvelope(resp, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, &models.BackendError{StatusCode: resp.StatusCode, Code: "MALFORMED_RESPONSE", Message: "response carried no access token"}
	}
	return &tokens, nil
}

// Login authenticates with email and password and stores both credentials
func (g *Gateway) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}
	return g.authenticate(ctx, "/auth/login", "login", req)
}

// Register creates an account and stores both credentials
func (g *Gateway) Register(ctx context.Context, req models.RegisterRequest) (*models.TokenResponse, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid registration request: %w", err)
	}
	return g.authenticate(ctx, "/auth/register", "register", req)
}

func (g *Gateway) authenticate(ctx context.Context, path, source string, body any) (*models.TokenResponse, error) {
	tokens, err := g.postTokens(ctx, path, body)
	if err != nil {
		g.logger.Warn().Err(err).Str("source", source).Msg("Authentication failed")
		return nil, err
	}

	if err := g.state.Store(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return nil, err
	}
	g.state.NotifyUpdated(ctx, source, tokens.RefreshToken != "")

	g.logger.Info().Str("source", source).Msg("Authenticated")
	return tokens, nil
}

// Logout clears both credentials locally. No backend call is made.
func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.state.Clear(ctx); err != nil {
		return err
	}
	g.state.Redirect(ctx, "logout")
	return nil
}

// Me returns the authenticated user's profile
func (g *Gateway) Me(ctx context.Context) (*models.User, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, g.URL("/auth/me"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := httpclient.DecodeEnvelope(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
