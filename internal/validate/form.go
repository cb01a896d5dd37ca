package validate

import (
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 30
)

// FormValidator checks login and registration input before it is allowed to
// reach the network. All checks are synchronous and side-effect free.
type FormValidator struct {
	fields   *validator.Validate
	password *PasswordPolicy
}

// NewFormValidator constructs a validator with the supplied password policy.
// A nil policy falls back to the default registration policy.
func NewFormValidator(policy *PasswordPolicy) *FormValidator {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &FormValidator{
		fields:   validator.New(validator.WithRequiredStructEnabled()),
		password: policy,
	}
}

// Login validates a login attempt. Only presence and email shape are checked;
// the password policy applies to registration, not to sign-in, so accounts
// predating a policy change can still log in.
func (v *FormValidator) Login(creds domain.Credentials) FieldErrors {
	errs := FieldErrors{
		FieldEmail:    v.checkEmail(creds.Email),
		FieldPassword: Ok,
	}
	if strings.TrimSpace(creds.Password) == "" {
		errs[FieldPassword] = invalid("required", "password is required")
	}
	return errs
}

// Registration validates the full sign-up form: every field gets a Result so
// the form can render inline feedback, and CanSubmit on the returned map is
// the submit predicate.
func (v *FormValidator) Registration(form domain.RegistrationForm) FieldErrors {
	errs := FieldErrors{
		FieldEmail:           v.checkEmail(form.Email),
		FieldUsername:        v.checkUsername(form.Username),
		FieldDisplayName:     v.checkDisplayName(form.DisplayName),
		FieldPassword:        v.password.Check(form.Password, form.Email, form.Username),
		FieldPasswordConfirm: Ok,
		FieldConsents:        Ok,
	}

	if form.PasswordConfirm != form.Password {
		errs[FieldPasswordConfirm] = invalid("mismatch", "passwords do not match")
	}

	for _, kind := range domain.RequiredConsents() {
		if !form.ConsentAccepted(kind) {
			errs[FieldConsents] = invalid("consent_required", fmt.Sprintf("%s consent must be accepted", kind))
			break
		}
	}

	return errs
}

func (v *FormValidator) checkEmail(email string) Result {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("required", "email is required")
	}
	if err := v.fields.Var(email, "email"); err != nil {
		return invalid("format", "email address is not valid")
	}
	return Ok
}

func (v *FormValidator) checkUsername(username string) Result {
	username = strings.TrimSpace(username)
	if username == "" {
		return invalid("required", "username is required")
	}
	rule := fmt.Sprintf("min=%d,max=%d,alphanum", usernameMinLength, usernameMaxLength)
	if err := v.fields.Var(username, rule); err != nil {
		return invalid("format", fmt.Sprintf("username must be %d-%d letters and digits", usernameMinLength, usernameMaxLength))
	}
	return Ok
}

func (v *FormValidator) checkDisplayName(name string) Result {
	if err := v.fields.Var(strings.TrimSpace(name), "max=50"); err != nil {
		return invalid("format", "display name must be at most 50 characters")
	}
	return Ok
}
