package domain

// Credentials carries a login attempt. Values live only for the duration of
// the call; they are never persisted or logged in clear.
type Credentials struct {
	Email    string
	Password string
}

// RegistrationForm carries the fields collected by the sign-up flow.
type RegistrationForm struct {
	Email           string
	Username        string
	DisplayName     string
	Password        string
	PasswordConfirm string
	Consents        []Consent
}

// ConsentAccepted reports whether the form carries an accepted consent of the
// given kind.
func (f RegistrationForm) ConsentAccepted(kind ConsentKind) bool {
	for _, c := range f.Consents {
		if c.Kind == kind && c.Accepted {
			return true
		}
	}
	return false
}
