package validate

import (
	"fmt"
	"sort"
	"strings"
)

// Field names shared by the login and registration forms.
const (
	FieldEmail           = "email"
	FieldUsername        = "username"
	FieldDisplayName     = "display_name"
	FieldPassword        = "password"
	FieldPasswordConfirm = "password_confirm"
	FieldConsents        = "consents"
)

// Result is the outcome of checking a single field.
type Result struct {
	Valid   bool
	Code    string
	Message string
}

// Ok is the result for a field that passed all checks.
var Ok = Result{Valid: true}

func invalid(code, message string) Result {
	return Result{Code: code, Message: message}
}

// FieldErrors maps field names to their validation outcome. It doubles as an
// error value when at least one field is invalid, so callers can surface it
// inline next to the offending fields without losing per-field detail.
type FieldErrors map[string]Result

// CanSubmit reports whether every checked field is valid. UIs recompute this
// on every input change; it performs no I/O.
func (f FieldErrors) CanSubmit() bool {
	for _, r := range f {
		if !r.Valid {
			return false
		}
	}
	return true
}

// Invalid returns the names of the fields that failed, sorted for stable output.
func (f FieldErrors) Invalid() []string {
	var fields []string
	for name, r := range f {
		if !r.Valid {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// Error implements error over the invalid subset.
func (f FieldErrors) Error() string {
	fields := f.Invalid()
	if len(fields) == 0 {
		return "validation passed"
	}
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", name, f[name].Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
