package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	// OAuth2 error codes per RFC 6749
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidClient  = "invalid_client"
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeServerError    = "server_error"
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeMFARequired    = "mfa_required"
	ErrorCodeAccessDenied   = "access_denied"

	// ErrorCodeUsernameTaken is returned by signup for a duplicate username.
	ErrorCodeUsernameTaken = "username_taken"
)

// ErrMalformedResponse marks a success response that lacks a field the
// caller cannot do without, such as a token response with no access_token.
var ErrMalformedResponse = errors.New("authapi: malformed response")

// ============================================================================
// TransportError - the request never got an HTTP answer
// ============================================================================

// TransportError reports a failure below HTTP: DNS, dialing, TLS, a dropped
// connection, or the context ending before a response arrived.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ============================================================================
// OAuth2Error - the server answered with an error status
// ============================================================================

// OAuth2Error represents an error response from the auth service. Token
// endpoint errors follow RFC 6749; other endpoints use the same shape.
type OAuth2Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the error code (e.g., "invalid_request", "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsAuthError reports whether the server rejected the presented credentials
// or token, as opposed to failing for some other reason.
func (e *OAuth2Error) IsAuthError() bool {
	switch e.Code {
	case ErrorCodeInvalidGrant, ErrorCodeInvalidToken, ErrorCodeInvalidClient, ErrorCodeAccessDenied:
		return true
	}
	return e.StatusCode == http.StatusUnauthorized
}

// IsAuthError reports whether err, anywhere in its chain, is an OAuth2Error
// for rejected credentials or tokens.
func IsAuthError(err error) bool {
	var oauthErr *OAuth2Error
	return errors.As(err, &oauthErr) && oauthErr.IsAuthError()
}

// IsTransportError reports whether err, anywhere in its chain, is a
// TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// ============================================================================
// MFA Error Response
// ============================================================================

// MFARequiredError is returned with HTTP 409 Conflict when the password was
// accepted but the account requires a second factor.
type MFARequiredError struct {
	// MFAToken is the token to use when submitting the MFA response
	MFAToken string `json:"mfa_token"`

	// Methods lists the available MFA methods (e.g., ["totp", "backup_codes"])
	Methods []string `json:"mfa_methods"`
}

// Error implements the error interface.
func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("MFA required: available methods=%v", e.Methods)
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-success HTTP response into a typed error.
// It checks for MFA challenges (409), OAuth2 errors, and validation errors.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusConflict {
		var mfaResp struct {
			Error      string   `json:"error"`
			MFAToken   string   `json:"mfa_token"`
			MFAMethods []string `json:"mfa_methods"`
		}
		if err := json.Unmarshal(body, &mfaResp); err == nil {
			if mfaResp.Error == ErrorCodeMFARequired && mfaResp.MFAToken != "" {
				return &MFARequiredError{
					MFAToken: mfaResp.MFAToken,
					Methods:  mfaResp.MFAMethods,
				}
			}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	var valErr ValidationErrorResponse
	if err := json.Unmarshal(body, &valErr); err == nil && valErr.Code != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        valErr.Code,
			Description: valErr.Message,
		}
	}

	// Fallback: create generic error from status code
	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
