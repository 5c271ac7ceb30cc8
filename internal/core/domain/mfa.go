package domain

import "time"

// MFAMethod enumerates supported second-factor channels.
type MFAMethod string

const (
	MFAMethodTOTP  MFAMethod = "totp"
	MFAMethodEmail MFAMethod = "email"
	MFAMethodSMS   MFAMethod = "sms"
)

// MFAEnrollment persists one (identity, method) second factor.
// Unique per (identity, method); at most one primary per identity.
type MFAEnrollment struct {
	ID         string
	IdentityID string
	Method     MFAMethod
	Secret     *string
	Address    *string
	IsVerified bool
	IsPrimary  bool
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// MFAChallenge is an ephemeral one-time-code challenge. The code is stored
// hashed; attempts start at 3 and only ever decrement.
type MFAChallenge struct {
	ID                string
	IdentityID        string
	Method            MFAMethod
	CodeHash          string
	AttemptsRemaining int
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// IsExpired reports whether the challenge can no longer be answered.
func (c MFAChallenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// BackupCode is a hashed single-use recovery code. IsUsed is monotonic;
// it resets only through regeneration, which replaces the whole set.
type BackupCode struct {
	ID         string
	IdentityID string
	CodeHash   string
	IsUsed     bool
	CreatedAt  time.Time
	UsedAt     *time.Time
}
