package domain

import "time"

// Invitation is a single-use, time-boxed onboarding token scoped to an
// organization and a role. The table keeps a deterministic HMAC lookup digest
// alongside a slow verification hash; the raw token is never stored.
type Invitation struct {
	ID               string
	Email            string
	OrganizationID   string
	RoleName         string
	LookupDigest     string
	VerificationHash string
	SealedToken      []byte
	InvitedBy        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UsedAt           *time.Time
	RedeemedBy       *string
}

// IsExpired reports whether the invitation window has elapsed.
func (i Invitation) IsExpired(at time.Time) bool {
	return !i.ExpiresAt.After(at)
}

// IsLive reports whether the invitation can still be redeemed.
func (i Invitation) IsLive(at time.Time) bool {
	return i.UsedAt == nil && !i.IsExpired(at)
}

// Consume marks the invitation used. Returns true when the invitation
// transitioned from unused to used.
func (i *Invitation) Consume(at time.Time, redeemedBy string) bool {
	if i.UsedAt != nil {
		return false
	}
	timeCopy := at
	i.UsedAt = &timeCopy
	if redeemedBy != "" {
		i.RedeemedBy = &redeemedBy
	}
	return true
}
