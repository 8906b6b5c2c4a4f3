package domain

import (
	"regexp"
	"strings"
	"time"

	"sso-hub/internal/platform/errs"
)

// User is the core user entity.
type User struct {
	ID        string
	Email     string // primary address, lowercased
	FirstName string
	LastName  string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Active reports whether the user may sign in.
func (u *User) Active() bool { return u != nil && u.Status == UserStatusActive }

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errs.New(errs.KindValidationFailed, "email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lowercases raw and checks its shape. Every email comparison in the
// system happens on the normalized form.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", errs.New(errs.KindValidationFailed, "email is required")
	}
	if !simpleEmail.MatchString(email) {
		return "", errs.New(errs.KindValidationFailed, "invalid email format")
	}
	return email, nil
}

// EmailDomain returns the part after the last "@" of a normalized email.
func EmailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}

// ValidatePassword enforces the password policy for newly set credentials.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return errs.New(errs.KindValidationFailed, "password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return errs.New(errs.KindValidationFailed, "password must contain at least one uppercase letter")
	case !hasLower:
		return errs.New(errs.KindValidationFailed, "password must contain at least one lowercase letter")
	case !hasNumber:
		return errs.New(errs.KindValidationFailed, "password must contain at least one number")
	case !hasSymbol:
		return errs.New(errs.KindValidationFailed, "password must contain at least one symbol")
	}
	return nil
}
