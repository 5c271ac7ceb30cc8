package domain

import (
	"strings"
	"time"
)

// IdentityStatus enumerates possible account states.
type IdentityStatus string

const (
	IdentityStatusPending  IdentityStatus = "pending"
	IdentityStatusActive   IdentityStatus = "active"
	IdentityStatusLocked   IdentityStatus = "locked"
	IdentityStatusDisabled IdentityStatus = "disabled"
)

// Identity mirrors the persisted representation in the identities table.
// PasswordHash is nil for federated-only accounts.
type Identity struct {
	ID                 string
	Email              string
	PasswordHash       *string
	Status             IdentityStatus
	IsActive           bool
	MFAEnabled         bool
	FailedAttempts     int
	LockedUntil        *time.Time
	RegisteredAt       time.Time
	LastLogin          *time.Time
	LastPasswordChange time.Time
	DeletedAt          *time.Time
}

// NormalizeEmail lowercases and trims an email for case-insensitive uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLocked reports whether the account is locked at the supplied moment,
// either explicitly or through an unexpired lockout window.
func (i Identity) IsLocked(at time.Time) bool {
	if i.Status == IdentityStatusLocked {
		return true
	}
	return i.LockedUntil != nil && i.LockedUntil.After(at)
}

// CanAuthenticate reports whether the account may attempt a credential login.
func (i Identity) CanAuthenticate(at time.Time) bool {
	if !i.IsActive || i.DeletedAt != nil {
		return false
	}
	if i.Status == IdentityStatusDisabled {
		return false
	}
	return !i.IsLocked(at)
}

// HasPassword reports whether the identity carries a local credential.
func (i Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// LoginAttempt records authentication attempts for throttling and audit.
type LoginAttempt struct {
	ID         string
	IdentityID *string
	Email      string
	Origin     *string
	UserAgent  *string
	Succeeded  bool
	CreatedAt  time.Time
}
