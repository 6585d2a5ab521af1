package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
)

// DefaultRefreshSkew is how close to expiry an access token may get before
// SyncProfile refreshes it first.
const DefaultRefreshSkew = 30 * time.Second

// Login signs username in, stores the profile and publishes Loading followed
// by Success or Error. When the account requires a second factor the error
// state's cause is an *authapi.MFARequiredError to pass to CompleteMFA.
func (m *Manager) Login(ctx context.Context, username, password string) (*domain.UserProfile, error) {
	m.SetLoading()

	resp, err := m.GetToken(ctx, username, password)
	if err != nil {
		step := StepLogin
		var mfaErr *authapi.MFARequiredError
		if errors.As(err, &mfaErr) {
			step = StepMFA
		}
		m.SetError(err.Error(), unwrapGeneric(err), step)
		return nil, err
	}

	return m.establish(ctx, username, "", resp, StepLogin)
}

// CompleteMFA answers the second factor challenge returned by Login.
func (m *Manager) CompleteMFA(ctx context.Context, username string, challenge *authapi.MFARequiredError, method, code string) (*domain.UserProfile, error) {
	m.SetLoading()

	resp, err := m.gateway.MFAOTPGrant(ctx, challenge, method, code)
	if err != nil {
		m.metrics.recordGatewayError("mfa")
		gerr := newGenericError(err)
		m.SetError(gerr.Message, err, StepMFA)
		return nil, gerr
	}

	return m.establish(ctx, username, "", resp, StepMFA)
}

// Register creates an account and signs it in. The public key is kept in the
// stored profile so it can be pushed again by SyncProfile.
func (m *Manager) Register(ctx context.Context, username, password, fcmToken, publicKey string) (*domain.UserProfile, error) {
	m.SetLoading()

	if _, err := m.SignUp(ctx, username, password, fcmToken, publicKey); err != nil {
		m.SetError(err.Error(), unwrapGeneric(err), StepSignUp)
		return nil, err
	}

	resp, err := m.GetToken(ctx, username, password)
	if err != nil {
		m.SetError(err.Error(), unwrapGeneric(err), StepLogin)
		return nil, err
	}

	return m.establish(ctx, username, publicKey, resp, StepSignUp)
}

// establish turns a token response into the stored profile and publishes
// Success. An empty publicKey keeps the key of a profile already stored for
// the same user.
func (m *Manager) establish(ctx context.Context, username, publicKey string, resp *authapi.TokenResponse, step AuthStep) (*domain.UserProfile, error) {
	if err := checkTokenResponse(resp); err != nil {
		m.SetError("the server sent an invalid token response", err, step)
		return nil, err
	}

	profile := &domain.UserProfile{
		Username: username,
		Token: domain.Token{
			AccessToken:        resp.AccessToken,
			RefreshToken:       resp.RefreshToken,
			AccessTokenSetTime: m.now().UnixMilli(),
		},
		PublicKey: publicKey,
	}
	if publicKey == "" {
		if prev := m.creds.Load(ctx); prev != nil && prev.Username == username {
			profile.PublicKey = prev.PublicKey
		}
	}

	if err := m.creds.Save(ctx, profile); err != nil {
		m.SetError("could not store credentials", err, step)
		return nil, fmt.Errorf("failed to store profile: %w", err)
	}

	m.logger.Info("signed in", "username", username)
	m.SetSuccess(profile)
	return profile, nil
}

// SyncProfile pushes the stored public key and fcmToken to the server,
// refreshing the access token first when it is about to expire.
func (m *Manager) SyncProfile(ctx context.Context, fcmToken string) error {
	m.SetLoading()

	profile := m.GetCachedUser(ctx)
	if profile == nil {
		m.SetError("not signed in", ErrNoSession, StepUpdate)
		return ErrNoSession
	}

	profile, err := m.EnsureFresh(ctx, profile, DefaultRefreshSkew)
	if err != nil {
		m.SetError(failureMessage(err), err, StepRefresh)
		return err
	}

	if _, err := m.UpdateProfileOnServer(ctx, profile.Token.AccessToken, authapi.UpdateRequest{
		PublicKey: profile.PublicKey,
		FCMToken:  fcmToken,
	}); err != nil {
		m.SetError(err.Error(), unwrapGeneric(err), StepUpdate)
		return err
	}

	m.SetSuccess(profile)
	return nil
}

// Logout revokes the refresh token when possible, clears the stored profile
// and returns to Idle. A failed revoke does not stop the local sign out.
func (m *Manager) Logout(ctx context.Context) error {
	if profile := m.GetCachedUser(ctx); profile != nil && profile.Token.RefreshToken != "" {
		if err := m.gateway.RevokeToken(ctx, profile.Token.RefreshToken); err != nil {
			m.metrics.recordGatewayError("revoke")
			m.logger.Warn("refresh token revoke failed", "username", profile.Username, "error", err)
		}
	}

	if err := m.ClearCache(ctx); err != nil {
		m.SetError("could not clear credentials", err, StepLogout)
		return err
	}

	m.logger.Info("signed out")
	m.publish(Idle())
	return nil
}

func unwrapGeneric(err error) error {
	var gerr *GenericError
	if errors.As(err, &gerr) && gerr.Err != nil {
		return gerr.Err
	}
	return err
}
