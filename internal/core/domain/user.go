package domain

import "time"

// User is the identity record held while a session is authenticated. It is
// replaced wholesale on login and discarded on logout; the client never
// mutates individual fields.
type User struct {
	ID              string
	Username        string
	DisplayName     string
	Email           string
	EmailVerified   bool
	HasProfileImage bool
	FollowerCount   int
	FollowingCount  int
	ListingCount    int
	RegisteredAt    time.Time
}

// ConsentKind identifies a legal document the user can accept.
type ConsentKind string

const (
	ConsentTerms     ConsentKind = "terms"
	ConsentPrivacy   ConsentKind = "privacy"
	ConsentMarketing ConsentKind = "marketing"
)

// Consent records acceptance of a legal document. Terms and privacy are
// required at registration; marketing is optional.
type Consent struct {
	Kind       ConsentKind
	Accepted   bool
	AcceptedAt time.Time
}

// RequiredConsents lists the consents registration cannot proceed without.
func RequiredConsents() []ConsentKind {
	return []ConsentKind{ConsentTerms, ConsentPrivacy}
}
