package validate

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const defaultMinZxcvbnScore = 2

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) Result
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) Result

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) Result {
	return f(password)
}

// PasswordPolicy applies a sequence of password rules, stopping at the first
// violation.
type PasswordPolicy struct {
	rules []PasswordRule
}

// NewPasswordPolicy constructs a policy with the provided rules.
func NewPasswordPolicy(rules ...PasswordRule) *PasswordPolicy {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordPolicy{rules: copied}
}

// DefaultPasswordPolicy is the policy enforced at registration: minimum
// length plus at least one letter, one digit, and one symbol, and a zxcvbn
// floor to reject guessable values that satisfy the class rules.
func DefaultPasswordPolicy() *PasswordPolicy {
	return NewPasswordPolicy(
		MinLengthRule(8),
		RequireLetterRule(),
		RequireDigitRule(),
		RequireSymbolRule(),
		RequireStrengthRule(defaultMinZxcvbnScore),
	)
}

// Check runs all rules and returns the first violation, or Ok.
func (p *PasswordPolicy) Check(password string, userInputs ...string) Result {
	if p == nil {
		return invalid("policy_missing", "password policy not configured")
	}
	for _, rule := range p.rules {
		if r := rule.Validate(password); !r.Valid {
			return r
		}
	}
	if len(userInputs) > 0 {
		// Re-score with user-supplied context so passwords derived from the
		// email or username are caught.
		if score := zxcvbn.PasswordStrength(password, userInputs).Score; score < defaultMinZxcvbnScore {
			return invalid("weak_password", "password is too similar to your account details")
		}
	}
	return Ok
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) Result {
		if len([]rune(password)) < min {
			return invalid("min_length", fmt.Sprintf("password must be at least %d characters long", min))
		}
		return Ok
	})
}

// RequireLetterRule ensures the password contains at least one unicode letter.
func RequireLetterRule() PasswordRule {
	return PasswordRuleFunc(func(password string) Result {
		for _, r := range password {
			if unicode.IsLetter(r) {
				return Ok
			}
		}
		return invalid("letter", "password must include at least one letter")
	})
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return PasswordRuleFunc(func(password string) Result {
		for _, r := range password {
			if unicode.IsDigit(r) {
				return Ok
			}
		}
		return invalid("digit", "password must include at least one digit")
	})
}

// RequireSymbolRule ensures the password contains at least one symbol or
// punctuation character.
func RequireSymbolRule() PasswordRule {
	return PasswordRuleFunc(func(password string) Result {
		for _, r := range password {
			if unicode.IsSymbol(r) || unicode.IsPunct(r) {
				return Ok
			}
		}
		return invalid("symbol", "password must include at least one special character")
	})
}

// RequireStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequireStrengthRule(minScore int) PasswordRule {
	return PasswordRuleFunc(func(password string) Result {
		if minScore <= 0 {
			return Ok
		}
		if minScore > 4 {
			minScore = 4
		}
		if zxcvbn.PasswordStrength(password, nil).Score < minScore {
			return invalid("weak_password", "password is too weak; choose a more complex value")
		}
		return Ok
	})
}
