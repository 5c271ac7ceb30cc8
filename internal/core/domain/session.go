package domain

import "time"

// Session represents a persisted login session bound 1:1 to a refresh token.
type Session struct {
	ID             string
	IdentityID     string
	RefreshTokenID *string
	DeviceID       *string
	DeviceLabel    *string
	OriginFirst    *string
	OriginLast     *string
	UserAgent      *string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	RevokeReason   *string
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Touch updates activity metadata and extends the inactivity window from now.
// Last write wins; concurrent touches for the same session are tolerated.
func (s *Session) Touch(at time.Time, ttl time.Duration, origin, userAgent *string) {
	s.LastActivityAt = at
	if ttl > 0 {
		extended := at.Add(ttl)
		if extended.After(s.ExpiresAt) {
			s.ExpiresAt = extended
		}
	}
	if origin != nil {
		originCopy := *origin
		if s.OriginFirst == nil {
			s.OriginFirst = &originCopy
		}
		s.OriginLast = &originCopy
	}
	if userAgent != nil {
		uaCopy := *userAgent
		s.UserAgent = &uaCopy
	}
}

// Revoke marks the session as revoked. Returns true when the session changed state.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s.RevokedAt != nil {
		return false
	}
	s.RevokedAt = &at
	s.RevokeReason = &reason
	return true
}
