package devserver

import (
	"time"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RegisterRequest defines the payload for the register endpoint.
type RegisterRequest struct {
	Email       string           `json:"email" binding:"required,email"`
	Username    string           `json:"username" binding:"required,min=3,max=30,alphanum"`
	DisplayName string           `json:"display_name"`
	Password    string           `json:"password" binding:"required,min=8"`
	Consents    []ConsentPayload `json:"consents"`
}

// ConsentPayload mirrors the consent record submitted at registration.
type ConsentPayload struct {
	Kind       string    `json:"kind"`
	Accepted   bool      `json:"accepted"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// VerifyRequest redeems an emailed verification code.
type VerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserPayload is the wire view of an account.
type UserPayload struct {
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

// TokenPayload carries the issued token pair.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by login, register, verify, and refresh.
type AuthResponse struct {
	User                 *UserPayload  `json:"user,omitempty"`
	Tokens               *TokenPayload `json:"tokens,omitempty"`
	VerificationRequired bool          `json:"verification_required,omitempty"`
}

func userPayloadFrom(u domain.User) *UserPayload {
	return &UserPayload{
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
