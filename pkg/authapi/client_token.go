package authapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Grant types accepted by the token endpoint.
const (
	GrantTypePassword     = "password"
	GrantTypeRefreshToken = "refresh_token"
	GrantTypeMFAOTP       = "mfa_otp"
)

// RequestToken exchanges a username and password for a token pair.
// Returns *MFARequiredError when the account has a second factor enabled.
func (c *Client) RequestToken(ctx context.Context, username, password string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {GrantTypePassword},
		"username":   {username},
		"password":   {password},
	}

	return c.requestToken(ctx, data)
}

// RefreshToken requests a new access token using a refresh token. The
// response may carry a rotated refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"refresh_token": {refreshToken},
	}

	return c.requestToken(ctx, data)
}

// MFAOTPGrant completes MFA authentication using a TOTP code or backup code.
func (c *Client) MFAOTPGrant(
	ctx context.Context,
	mfaError *MFARequiredError,
	method, otpCode string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {GrantTypeMFAOTP},
		"mfa_token":  {mfaError.MFAToken},
		"method":     {method},
		"otp_code":   {otpCode},
	}

	return c.requestToken(ctx, data)
}

// RevokeToken revokes a refresh token.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	data := url.Values{
		"token":           {token},
		"token_type_hint": {"refresh_token"},
		"client_id":       {c.ClientID},
	}

	resp, err := c.doRequest(
		ctx,
		http.MethodPost,
		"/v1/oauth2/revoke",
		strings.NewReader(data.Encode()),
		formHeaders(),
	)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusOK)
}

func (c *Client) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	data.Set("client_id", c.ClientID)

	resp, err := c.doRequest(
		ctx,
		http.MethodPost,
		"/v1/oauth2/token",
		strings.NewReader(data.Encode()),
		formHeaders(),
	)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}

func formHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
}
