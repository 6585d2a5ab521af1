package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/idx"
)

func TestAuthStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state AuthState
		want  string
	}{
		{Idle(), "idle"},
		{Loading(), "loading"},
		{Succeeded(&domain.UserProfile{Username: "alice"}), "success(alice)"},
		{Succeeded(nil), "success"},
		{Failed("bad password", nil, StepLogin), "error(login: bad password)"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.state.String())
		})
	}

	require.Nil(t, Idle().Success())
	require.Nil(t, Idle().Error())
	require.Equal(t, "step(42)", AuthStep(42).String())
}

func TestAuthStateStringWithoutPayload(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", AuthState{Phase: PhaseSuccess}.String())
	require.Equal(t, "error", AuthState{Phase: PhaseError}.String())
}

func TestNilEvent(t *testing.T) {
	t.Parallel()

	var e *Event[Failure]
	consumer := idx.New()

	_, ok := e.Take(consumer)
	require.False(t, ok)
	require.False(t, e.Taken(consumer))
	require.Equal(t, Failure{}, e.Peek())
	require.Nil(t, AuthState{Phase: PhaseSuccess}.Success().Peek())
}

func TestEventTake(t *testing.T) {
	t.Parallel()

	e := NewEvent("payload")
	a, b := idx.New(), idx.New()

	got, ok := e.Take(a)
	require.True(t, ok)
	require.Equal(t, "payload", got)
	require.True(t, e.Taken(a))
	require.False(t, e.Taken(b))

	got, ok = e.Take(a)
	require.False(t, ok)
	require.Empty(t, got)

	_, ok = e.Take(b)
	require.True(t, ok)
	require.Equal(t, "payload", e.Peek())
}

func TestFailureMessage(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want string
	}{
		"oauth description": {
			err:  &authapi.OAuth2Error{Code: "invalid_grant", Description: "invalid credentials"},
			want: "invalid credentials",
		},
		"oauth code only": {
			err:  &authapi.OAuth2Error{Code: "username_taken"},
			want: "username_taken",
		},
		"mfa": {
			err:  &authapi.MFARequiredError{MFAToken: "t"},
			want: "a second factor is required",
		},
		"transport": {
			err:  &authapi.TransportError{Op: "POST /x", Err: errors.New("connection refused")},
			want: "could not reach the server: connection refused",
		},
		"plain": {
			err:  errors.New("boom"),
			want: "boom",
		},
		"empty": {
			err:  errors.New(""),
			want: "unknown error",
		},
	}

	for name, tt := range tests {
		name, tt := name, tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			gerr := newGenericError(tt.err)
			require.Equal(t, tt.want, gerr.Error())
			require.ErrorIs(t, gerr, tt.err)
		})
	}
}
