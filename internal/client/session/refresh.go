package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/cryptox"
	"github.com/aussiebroadwan/tabchat/pkg/jwtx"
)

// RefreshAccessToken trades the profile's refresh token for a new access
// token. On success profile is updated in place, persisted and returned. On
// any failure it returns nil and neither profile nor the stored copy change.
// Use TryRefreshAccessToken to find out why a refresh failed.
func (m *Manager) RefreshAccessToken(ctx context.Context, profile *domain.UserProfile) *domain.UserProfile {
	refreshed, err := m.TryRefreshAccessToken(ctx, profile)
	if err != nil {
		m.logger.Warn("access token refresh failed", "error", err)
		return nil
	}
	return refreshed
}

// TryRefreshAccessToken is RefreshAccessToken with the failure reported.
// A refresh token the server refuses, or a profile without one, yields an
// error matching ErrRefreshRejected. A token response without an access token
// matches authapi.ErrMalformedResponse. Other failures are returned wrapped.
func (m *Manager) TryRefreshAccessToken(ctx context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	if profile == nil {
		return nil, ErrNoSession
	}
	if profile.Token.RefreshToken == "" {
		m.metrics.recordRefresh("rejected")
		return nil, fmt.Errorf("%w: no refresh token stored", ErrRefreshRejected)
	}

	resp, err := m.gateway.RefreshToken(ctx, profile.Token.RefreshToken)
	if err != nil {
		m.metrics.recordGatewayError("refresh")
		m.metrics.recordRefresh(refreshResult(err))
		if authapi.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
		}
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	if err := checkTokenResponse(resp); err != nil {
		m.metrics.recordRefresh("malformed")
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	// Work on a copy so a failed save leaves the caller's profile untouched.
	updated := profile.Clone()
	updated.Token.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		updated.Token.RefreshToken = resp.RefreshToken
	}
	// The set time always moves forward, even on a coarse or stepped clock.
	updated.Token.AccessTokenSetTime = max(m.now().UnixMilli(), profile.Token.AccessTokenSetTime+1)

	if err := m.creds.Save(ctx, updated); err != nil {
		m.metrics.recordRefresh("storage")
		return nil, fmt.Errorf("failed to store refreshed profile: %w", err)
	}

	*profile = *updated
	m.metrics.recordRefresh("ok")
	m.logger.Debug("access token refreshed",
		"username", profile.Username,
		"refresh_fp", cryptox.FingerprintToken(profile.Token.RefreshToken),
	)
	return profile, nil
}

// refreshResult labels a failed refresh call for the refreshes counter.
func refreshResult(err error) string {
	var oauthErr *authapi.OAuth2Error
	switch {
	case authapi.IsAuthError(err):
		return "rejected"
	case errors.As(err, &oauthErr):
		return "server"
	default:
		return "transport"
	}
}

// checkTokenResponse rejects a successful token response that carries no
// access token.
func checkTokenResponse(resp *authapi.TokenResponse) error {
	if resp == nil || resp.AccessToken == "" {
		return fmt.Errorf("%w: token response without access_token", authapi.ErrMalformedResponse)
	}
	return nil
}

// AccessTokenExpiry returns when the profile's access token expires. It reads
// the token's exp claim and falls back to the set time plus the configured
// TTL when the token is opaque or carries no expiry.
func (m *Manager) AccessTokenExpiry(profile *domain.UserProfile) time.Time {
	claims, err := jwtx.Inspect(profile.Token.AccessToken)
	if err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return profile.Token.SetAt().Add(m.accessTTL)
}

// EnsureFresh refreshes profile when its access token expires within skew.
// A fresh profile is returned as is without contacting the server.
func (m *Manager) EnsureFresh(ctx context.Context, profile *domain.UserProfile, skew time.Duration) (*domain.UserProfile, error) {
	if profile == nil {
		return nil, ErrNoSession
	}

	if m.now().Add(skew).Before(m.AccessTokenExpiry(profile)) {
		return profile, nil
	}
	return m.TryRefreshAccessToken(ctx, profile)
}

// KeepAlive keeps the cached user's access token fresh until ctx is done. It
// checks once immediately and then every interval. A rejected refresh token
// ends the loop with an error state and an error matching ErrRefreshRejected;
// transient failures are logged and retried on the next tick.
func (m *Manager) KeepAlive(ctx context.Context, interval, skew time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.keepAliveOnce(ctx, skew); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) keepAliveOnce(ctx context.Context, skew time.Duration) error {
	profile := m.GetCachedUser(ctx)
	if profile == nil {
		m.logger.Debug("keepalive: nobody signed in")
		return nil
	}

	_, err := m.EnsureFresh(ctx, profile, skew)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRefreshRejected):
		m.SetError(failureMessage(err), err, StepRefresh)
		return err
	case ctx.Err() != nil:
		return nil
	default:
		m.logger.Warn("keepalive refresh failed, will retry", "error", err)
		return nil
	}
}
