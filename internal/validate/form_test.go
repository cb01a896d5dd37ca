package validate

import (
	"testing"
	"time"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

func validRegistrationForm() domain.RegistrationForm {
	now := time.Now().UTC()
	return domain.RegistrationForm{
		Email:           "collector@example.com",
		Username:        "collector",
		DisplayName:     "The Collector",
		Password:        "V3lvet-Otter-Plinth",
		PasswordConfirm: "V3lvet-Otter-Plinth",
		Consents: []domain.Consent{
			{Kind: domain.ConsentTerms, Accepted: true, AcceptedAt: now},
			{Kind: domain.ConsentPrivacy, Accepted: true, AcceptedAt: now},
		},
	}
}

func TestLoginValidation(t *testing.T) {
	v := NewFormValidator(nil)

	tests := []struct {
		name     string
		creds    domain.Credentials
		field    string
		wantCode string
	}{
		{"valid credentials", domain.Credentials{Email: "collector@example.com", Password: "x"}, "", ""},
		{"malformed email", domain.Credentials{Email: "notanemail", Password: "x"}, FieldEmail, "format"},
		{"missing email", domain.Credentials{Password: "x"}, FieldEmail, "required"},
		{"missing password", domain.Credentials{Email: "collector@example.com"}, FieldPassword, "required"},
		{"blank password", domain.Credentials{Email: "collector@example.com", Password: "   "}, FieldPassword, "required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := v.Login(tc.creds)
			if tc.wantCode == "" {
				if !errs.CanSubmit() {
					t.Fatalf("expected submittable, got %v", errs.Invalid())
				}
				return
			}
			if errs.CanSubmit() {
				t.Fatal("expected validation failure")
			}
			if got := errs[tc.field]; got.Valid || got.Code != tc.wantCode {
				t.Fatalf("field %s: expected code %q, got %+v", tc.field, tc.wantCode, got)
			}
		})
	}
}

func TestLoginDoesNotApplyPasswordPolicy(t *testing.T) {
	v := NewFormValidator(nil)

	// A short legacy password must still be accepted at sign-in; the policy
	// binds account creation only.
	errs := v.Login(domain.Credentials{Email: "collector@example.com", Password: "old"})
	if !errs.CanSubmit() {
		t.Fatalf("legacy password rejected at login: %v", errs.Invalid())
	}
}

func TestRegistrationValidation(t *testing.T) {
	v := NewFormValidator(nil)

	t.Run("valid form", func(t *testing.T) {
		errs := v.Registration(validRegistrationForm())
		if !errs.CanSubmit() {
			t.Fatalf("expected submittable, got %v", errs.Invalid())
		}
	})

	t.Run("every field reported", func(t *testing.T) {
		errs := v.Registration(validRegistrationForm())
		for _, field := range []string{FieldEmail, FieldUsername, FieldDisplayName, FieldPassword, FieldPasswordConfirm, FieldConsents} {
			if _, ok := errs[field]; !ok {
				t.Errorf("field %s missing from result map", field)
			}
		}
	})

	t.Run("username too short", func(t *testing.T) {
		form := validRegistrationForm()
		form.Username = "ab"
		errs := v.Registration(form)
		if errs[FieldUsername].Valid {
			t.Fatal("expected username violation")
		}
	})

	t.Run("username with punctuation", func(t *testing.T) {
		form := validRegistrationForm()
		form.Username = "col.lector"
		errs := v.Registration(form)
		if errs[FieldUsername].Valid {
			t.Fatal("expected username violation")
		}
	})

	t.Run("password mismatch", func(t *testing.T) {
		form := validRegistrationForm()
		form.PasswordConfirm = "different-P4ss!"
		errs := v.Registration(form)
		if got := errs[FieldPasswordConfirm]; got.Valid || got.Code != "mismatch" {
			t.Fatalf("expected mismatch, got %+v", got)
		}
	})

	t.Run("missing required consent", func(t *testing.T) {
		form := validRegistrationForm()
		form.Consents = form.Consents[:1] // drop privacy
		errs := v.Registration(form)
		if got := errs[FieldConsents]; got.Valid || got.Code != "consent_required" {
			t.Fatalf("expected consent_required, got %+v", got)
		}
	})

	t.Run("marketing consent is optional", func(t *testing.T) {
		form := validRegistrationForm()
		form.Consents = append(form.Consents, domain.Consent{Kind: domain.ConsentMarketing, Accepted: false})
		errs := v.Registration(form)
		if !errs.CanSubmit() {
			t.Fatalf("declined marketing consent blocked submission: %v", errs.Invalid())
		}
	})

	t.Run("multiple violations reported together", func(t *testing.T) {
		form := validRegistrationForm()
		form.Email = "notanemail"
		form.Username = "a"
		errs := v.Registration(form)
		invalid := errs.Invalid()
		if len(invalid) < 2 {
			t.Fatalf("expected both violations, got %v", invalid)
		}
	})
}
