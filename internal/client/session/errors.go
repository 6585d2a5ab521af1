package session

import (
	"errors"

	"github.com/aussiebroadwan/tabchat/pkg/authapi"
)

var (
	// ErrNoSession is returned when an operation needs a signed in user and
	// the credential store is empty.
	ErrNoSession = errors.New("session: no signed in user")

	// ErrRefreshRejected means the server refused the refresh token. The
	// user has to sign in again.
	ErrRefreshRejected = errors.New("session: refresh token rejected")
)

// GenericError is the failure half of the Result-style helpers (GetToken,
// SignUp, UpdateProfileOnServer). Message is always non-empty and suitable
// for showing to a user; the underlying error stays reachable via errors.As.
type GenericError struct {
	Message string
	Err     error
}

func (e *GenericError) Error() string { return e.Message }

func (e *GenericError) Unwrap() error { return e.Err }

func newGenericError(err error) *GenericError {
	return &GenericError{Message: failureMessage(err), Err: err}
}

// failureMessage picks the most useful human readable text for err.
func failureMessage(err error) string {
	var oauthErr *authapi.OAuth2Error
	if errors.As(err, &oauthErr) && oauthErr.Description != "" {
		return oauthErr.Description
	}

	var mfaErr *authapi.MFARequiredError
	if errors.As(err, &mfaErr) {
		return "a second factor is required"
	}

	var tErr *authapi.TransportError
	if errors.As(err, &tErr) && tErr.Err != nil {
		return "could not reach the server: " + tErr.Err.Error()
	}

	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
