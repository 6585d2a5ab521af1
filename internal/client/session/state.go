package session

import (
	"fmt"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
)

// Phase is the lifecycle phase of an AuthState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// AuthStep names the flow an error came from. It is diagnostic only.
type AuthStep int

const (
	StepLogin AuthStep = iota
	StepSignUp
	StepRefresh
	StepUpdate
	StepMFA
	StepLogout
)

func (s AuthStep) String() string {
	switch s {
	case StepLogin:
		return "login"
	case StepSignUp:
		return "signup"
	case StepRefresh:
		return "refresh"
	case StepUpdate:
		return "update"
	case StepMFA:
		return "mfa"
	case StepLogout:
		return "logout"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Failure is the payload of an error state.
type Failure struct {
	Message string
	Cause   error
	Step    AuthStep
}

// AuthState is an immutable snapshot of the authentication lifecycle.
// Success carries the signed in profile and Error a Failure, each wrapped in
// an Event so observers can react to them once.
type AuthState struct {
	Phase Phase

	success *Event[*domain.UserProfile]
	failure *Event[Failure]
}

// Idle is the state before any operation and after logout.
func Idle() AuthState { return AuthState{Phase: PhaseIdle} }

// Loading is the state while an operation is in flight.
func Loading() AuthState { return AuthState{Phase: PhaseLoading} }

// Succeeded builds a success state. The profile is copied so later in-place
// refreshes do not change what observers were shown.
func Succeeded(profile *domain.UserProfile) AuthState {
	return AuthState{Phase: PhaseSuccess, success: NewEvent(profile.Clone())}
}

// Failed builds an error state.
func Failed(message string, cause error, step AuthStep) AuthState {
	return AuthState{Phase: PhaseError, failure: NewEvent(Failure{Message: message, Cause: cause, Step: step})}
}

// Success returns the success event, or nil unless Phase is PhaseSuccess.
func (s AuthState) Success() *Event[*domain.UserProfile] { return s.success }

// Error returns the failure event, or nil unless Phase is PhaseError.
func (s AuthState) Error() *Event[Failure] { return s.failure }

func (s AuthState) String() string {
	switch s.Phase {
	case PhaseSuccess:
		if p := s.success.Peek(); p != nil {
			return fmt.Sprintf("success(%s)", p.Username)
		}
	case PhaseError:
		if s.failure != nil {
			f := s.failure.Peek()
			return fmt.Sprintf("error(%s: %s)", f.Step, f.Message)
		}
	}
	return s.Phase.String()
}
