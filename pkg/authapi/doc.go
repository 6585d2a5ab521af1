/*
Package authapi is the typed HTTP client for the tabchat authentication
service. It is the client's only way to reach the remote auth endpoints.

# Client

Create one Client per process and share it:

	client := authapi.NewClient("https://auth.example.com", "mobile-app")

	// Exchange credentials for a token pair
	tokens, err := client.RequestToken(ctx, "alice", "hunter2")

	// Renew the access token
	tokens, err = client.RefreshToken(ctx, tokens.RefreshToken)

	// Create an account
	created, err := client.SignUp(ctx, authapi.SignUpRequest{...})

	// Push the device's public key and push-notification token
	err = client.UpdateProfile(ctx, tokens.AccessToken, authapi.UpdateRequest{...})

Every method is exactly one round trip. There are no retries and no backoff:
a failure is returned to the caller as-is. The only timeout is the one on
HTTPClient (10 seconds by default), and the only cancellation is the context
passed in.

# Throttling

Setting Limiter makes every request wait for a token from the limiter before
it is sent. Waiting is not retrying; a limited request is sent once.

	client.Limiter = rate.NewLimiter(rate.Limit(2), 4)

# Error Handling

The client returns typed errors:

  - *TransportError: the request never produced an HTTP response (DNS,
    connection refused, TLS, context cancelled).
  - *OAuth2Error: the server answered with a non-success status. Use
    IsAuthError to detect rejected credentials or tokens.
  - *MFARequiredError: the password was accepted but a second factor is
    needed; finish with MFAOTPGrant.

Example:

	tokens, err := client.RequestToken(ctx, username, password)
	var mfaErr *authapi.MFARequiredError
	switch {
	case errors.As(err, &mfaErr):
		code, _ := authapi.GenerateTOTP(secret, time.Now())
		tokens, err = client.MFAOTPGrant(ctx, mfaErr, authapi.MFAMethodTOTP, code)
	case authapi.IsAuthError(err):
		// wrong username or password
	}
*/
package authapi
