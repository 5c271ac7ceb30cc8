package domain

import "time"

// TokenKind distinguishes opaque credential families sharing one table shape.
type TokenKind string

const (
	TokenKindRefresh       TokenKind = "refresh"
	TokenKindRememberMe    TokenKind = "remember_me"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// OpaqueToken represents a persisted refresh or remember-me token.
// Only the SHA-256 hash of the presented value is stored.
type OpaqueToken struct {
	ID         string
	IdentityID string
	Kind       TokenKind
	TokenHash  string
	SessionID  *string
	DeviceID   *string
	Origin     *string
	UserAgent  *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t OpaqueToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token has been explicitly revoked.
func (t OpaqueToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive returns true when the token can still be presented.
func (t OpaqueToken) IsActive(at time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(at)
}

// Revoke marks the token as revoked. Returns true when the token
// transitioned to the revoked state, false when it already was.
func (t *OpaqueToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	return true
}
