// Package session owns the signed in user's lifecycle on the client: it
// talks to the auth service, keeps the credential store in sync and publishes
// an observable AuthState for UI layers.
//
// The Manager does no internal locking around session mutations. Callers are
// expected to run at most one session-mutating operation at a time; state
// publication itself is safe for concurrent use.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/jwtx"
	"github.com/aussiebroadwan/tabchat/pkg/observable"
)

// Gateway is the remote auth service. *authapi.Client implements it.
type Gateway interface {
	RequestToken(ctx context.Context, username, password string) (*authapi.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
	MFAOTPGrant(ctx context.Context, challenge *authapi.MFARequiredError, method, code string) (*authapi.TokenResponse, error)
	SignUp(ctx context.Context, req authapi.SignUpRequest) (*authapi.SignUpResponse, error)
	UpdateProfile(ctx context.Context, accessToken string, req authapi.UpdateRequest) error
	RevokeToken(ctx context.Context, token string) error
}

// Credentials persists the single user profile. *credstore.Store implements it.
type Credentials interface {
	Load(ctx context.Context) *domain.UserProfile
	Save(ctx context.Context, profile *domain.UserProfile) error
	Clear(ctx context.Context) error
}

// Options tunes a Manager. The zero value is usable.
type Options struct {
	// Now is the clock used for token timestamps. Defaults to time.Now.
	Now func() time.Time

	// AccessTokenTTL is assumed for access tokens whose expiry cannot be read
	// from the token itself. Defaults to jwtx.DefaultAccessTokenTTL.
	AccessTokenTTL time.Duration

	// Metrics, when set, records transitions and refresh outcomes.
	Metrics *Metrics
}

type Manager struct {
	creds   Credentials
	gateway Gateway
	logger  *slog.Logger
	metrics *Metrics

	now       func() time.Time
	accessTTL time.Duration

	state *observable.Value[AuthState]
}

// NewManager creates a Manager in the Idle state.
func NewManager(creds Credentials, gateway Gateway, logger *slog.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = jwtx.DefaultAccessTokenTTL
	}

	return &Manager{
		creds:     creds,
		gateway:   gateway,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		accessTTL: opts.AccessTokenTTL,
		state:     observable.New(Idle()),
	}
}

// State returns the current AuthState.
func (m *Manager) State() AuthState { return m.state.Get() }

// Subscribe registers an observer. The subscription immediately holds the
// current state; intermediate states may be skipped for slow readers. Use the
// subscription ID as the consumer when taking Success and Error events.
func (m *Manager) Subscribe() *observable.Subscription[AuthState] {
	return m.state.Subscribe()
}

// SetLoading publishes the loading state.
func (m *Manager) SetLoading() { m.publish(Loading()) }

// SetSuccess publishes a success state for profile.
func (m *Manager) SetSuccess(profile *domain.UserProfile) { m.publish(Succeeded(profile)) }

// SetError publishes an error state.
func (m *Manager) SetError(message string, cause error, step AuthStep) {
	m.publish(Failed(message, cause, step))
}

func (m *Manager) publish(s AuthState) {
	m.logger.Debug("auth state changed", "state", s.String())
	m.metrics.recordTransition(s.Phase)
	m.state.Set(s)
}

// GetCachedUser returns the stored profile, or nil when nobody is signed in.
func (m *Manager) GetCachedUser(ctx context.Context) *domain.UserProfile {
	return m.creds.Load(ctx)
}

// ClearCache removes the stored profile without touching the auth state.
func (m *Manager) ClearCache(ctx context.Context) error {
	return m.creds.Clear(ctx)
}

// GetToken exchanges a username and password for tokens. It does not change
// the auth state. Errors are always *GenericError.
func (m *Manager) GetToken(ctx context.Context, username, password string) (*authapi.TokenResponse, error) {
	resp, err := m.gateway.RequestToken(ctx, username, password)
	if err != nil {
		m.metrics.recordGatewayError("token")
		m.logger.Warn("token request failed", "username", username, "error", err)
		return nil, newGenericError(err)
	}
	return resp, nil
}

// UpdateProfileOnServer pushes the device fields of the caller's profile.
// Errors are always *GenericError.
func (m *Manager) UpdateProfileOnServer(ctx context.Context, accessToken string, req authapi.UpdateRequest) (bool, error) {
	if err := m.gateway.UpdateProfile(ctx, accessToken, req); err != nil {
		m.metrics.recordGatewayError("update_profile")
		m.logger.Warn("profile update failed", "error", err)
		return false, newGenericError(err)
	}
	return true, nil
}

// SignUp creates an account. It neither signs the user in nor changes the
// auth state. Errors are always *GenericError.
func (m *Manager) SignUp(ctx context.Context, username, password, fcmToken, publicKey string) (*authapi.SignUpResponse, error) {
	resp, err := m.gateway.SignUp(ctx, authapi.SignUpRequest{
		Username:  username,
		Password:  password,
		FCMToken:  fcmToken,
		PublicKey: publicKey,
	})
	if err != nil {
		m.metrics.recordGatewayError("signup")
		m.logger.Warn("signup failed", "username", username, "error", err)
		return nil, newGenericError(err)
	}
	return resp, nil
}
