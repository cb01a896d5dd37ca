package domain

import "time"

// Phase enumerates the authentication states the client can be in.
type Phase string

const (
	// PhaseLoading is the initial state while the stored session is being checked.
	PhaseLoading Phase = "loading"
	// PhaseUnauthenticated means no valid session is held.
	PhaseUnauthenticated Phase = "unauthenticated"
	// PhaseAuthenticated means a valid session is held for a known user.
	PhaseAuthenticated Phase = "authenticated"
	// PhaseEmailVerificationPending means registration succeeded but the
	// account must confirm an emailed code before it becomes usable.
	PhaseEmailVerificationPending Phase = "email_verification_pending"
	// PhaseLoggingOut means a logout is in flight.
	PhaseLoggingOut Phase = "logging_out"
	// PhaseErrored means the last session operation failed in a way the
	// client cannot resolve without user action.
	PhaseErrored Phase = "errored"
)

var phaseTransitions = map[Phase][]Phase{
	PhaseLoading:                  {PhaseAuthenticated, PhaseUnauthenticated, PhaseErrored},
	PhaseUnauthenticated:          {PhaseAuthenticated, PhaseEmailVerificationPending},
	PhaseEmailVerificationPending: {PhaseAuthenticated, PhaseUnauthenticated},
	PhaseAuthenticated:            {PhaseLoggingOut, PhaseUnauthenticated, PhaseErrored},
	PhaseLoggingOut:               {PhaseUnauthenticated},
	PhaseErrored:                  {PhaseLoading, PhaseUnauthenticated},
}

// CanTransition reports whether moving from the receiver to next is a legal
// session state change.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CarriesUser reports whether the phase is expected to hold a user value.
func (p Phase) CarriesUser() bool {
	return p == PhaseAuthenticated || p == PhaseEmailVerificationPending
}

// Snapshot is the published view of the session at a point in time. Exactly
// one phase is active; User is non-nil only for phases that carry one and
// Message is non-empty only for PhaseErrored.
type Snapshot struct {
	Phase   Phase
	User    *User
	Message string
	At      time.Time
}

// Authenticated reports whether the snapshot represents a signed-in user.
func (s Snapshot) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil
}

// TokenPair bundles the access and refresh tokens held for a session.
// The refresh token is opaque; the access token is a JWT whose expiry the
// client may inspect without verifying the signature.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ObtainedAt   time.Time
}

// Empty reports whether the pair holds no usable tokens.
func (t TokenPair) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}
