package authapi

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is returned when request validation fails, for
// example a signup with a too-short password.
type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// It is returned for the password, refresh_token and mfa_otp grants.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access
	// tokens. Omitted on refresh when the server does not rotate it.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" (RFC 6749 section 7.1)
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// User Types
// ============================================================================

// SignUpRequest creates an account. The public key is the device's end-to-end
// messaging key; the FCM token routes push notifications to the device.
type SignUpRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FCMToken  string `json:"fcm_token"`
	PublicKey string `json:"public_key"`
}

// SignUpResponse identifies the created account.
type SignUpResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// UpdateRequest replaces the device specific fields of the caller's profile.
type UpdateRequest struct {
	PublicKey string `json:"public_key"`
	FCMToken  string `json:"fcm_token"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response of the /livez endpoint.
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Version is the service version string
	Version string `json:"version,omitempty"`
}
