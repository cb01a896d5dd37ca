package port

import (
	"context"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

// AuthResult carries the outcome of an operation that establishes a session.
type AuthResult struct {
	User   domain.User
	Tokens domain.TokenPair
	// VerificationRequired is set when the server accepted a registration
	// but requires the emailed code to be confirmed before issuing tokens.
	VerificationRequired bool
}

// AuthAPI is the network boundary for authentication. Implementations map
// transport failures onto the sentinel errors in this package; callers only
// ever inspect errors with errors.Is.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (AuthResult, error)
	Register(ctx context.Context, form domain.RegistrationForm) (AuthResult, error)
	VerifyEmail(ctx context.Context, email, code string) (AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*domain.User, error)
}

// TokenStore persists the session tokens across process restarts.
// Load returns ErrNoStoredSession when nothing is held; Clear is idempotent.
type TokenStore interface {
	Load(ctx context.Context) (domain.TokenPair, error)
	Save(ctx context.Context, tokens domain.TokenPair) error
	Clear(ctx context.Context) error
}
