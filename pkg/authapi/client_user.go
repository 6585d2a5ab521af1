package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignUp creates a new account. A taken username comes back as an
// *OAuth2Error with code ErrorCodeUsernameTaken and status 409.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/users", bytes.NewReader(body), jsonHeaders())
	if err != nil {
		return nil, err
	}

	var signUpResp SignUpResponse
	if err := decodeJSON(resp, &signUpResp, http.StatusCreated); err != nil {
		return nil, err
	}

	return &signUpResp, nil
}

// UpdateProfile replaces the caller's public key and push token. The access
// token is sent as a bearer credential.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, req UpdateRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	headers := jsonHeaders()
	headers["Authorization"] = "Bearer " + accessToken

	resp, err := c.doRequest(ctx, http.MethodPatch, "/v1/users/me", bytes.NewReader(body), headers)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusNoContent)
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}
