package httpapi

import (
	"time"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

// Wire representations of the auth API payloads. The devserver mirrors these
// shapes; the production backend is treated as an opaque collaborator that
// happens to speak the same contract.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type consentPayload struct {
	Kind       string    `json:"kind"`
	Accepted   bool      `json:"accepted"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type registerRequest struct {
	Email       string           `json:"email"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name,omitempty"`
	Password    string           `json:"password"`
	Consents    []consentPayload `json:"consents"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userPayload struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	EmailVerified   bool      `json:"email_verified"`
	HasProfileImage bool      `json:"has_profile_image"`
	FollowerCount   int       `json:"follower_count"`
	FollowingCount  int       `json:"following_count"`
	ListingCount    int       `json:"listing_count"`
	RegisteredAt    time.Time `json:"registered_at"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User                 *userPayload  `json:"user,omitempty"`
	Tokens               *tokenPayload `json:"tokens,omitempty"`
	VerificationRequired bool          `json:"verification_required,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (u *userPayload) toDomain() domain.User {
	return domain.User{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		Email:           u.Email,
		EmailVerified:   u.EmailVerified,
		HasProfileImage: u.HasProfileImage,
		FollowerCount:   u.FollowerCount,
		FollowingCount:  u.FollowingCount,
		ListingCount:    u.ListingCount,
		RegisteredAt:    u.RegisteredAt,
	}
}
