package port

import "errors"

var (
	// ErrInvalidCredentials indicates the server rejected the identifier or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidationRejected indicates the server refused the submitted fields.
	ErrValidationRejected = errors.New("validation rejected by server")
	// ErrAccountPending indicates the account exists but has not confirmed its email.
	ErrAccountPending = errors.New("account pending email verification")
	// ErrNetwork indicates the API endpoint could not be reached.
	ErrNetwork = errors.New("network unreachable")
	// ErrServer indicates the API answered with a server-side failure.
	ErrServer = errors.New("server error")
	// ErrSessionExpired indicates a previously valid session is no longer accepted.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnknown indicates a failure outside the known taxonomy.
	ErrUnknown = errors.New("unknown auth error")

	// ErrNoStoredSession indicates the token store holds no tokens.
	ErrNoStoredSession = errors.New("no stored session")
)

// ErrorCategory maps an auth error to a stable label suitable for metrics
// and logging. Unrecognized errors fall into the unknown bucket.
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrValidationRejected):
		return "validation_rejected"
	case errors.Is(err, ErrAccountPending):
		return "account_pending"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the error is an expected, user-recoverable
// outcome (re-prompt or retry) rather than a systemic fault.
func Recoverable(err error) bool {
	switch ErrorCategory(err) {
	case "invalid_credentials", "validation_rejected", "network", "server", "account_pending":
		return true
	default:
		return false
	}
}
