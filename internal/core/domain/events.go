package domain

import "time"

// IdentityRegisteredEvent is published after a successful signup or first
// invitation redemption that created an account.
type IdentityRegisteredEvent struct {
	IdentityID   string
	Email        string
	RegisteredAt time.Time
}

// PasswordChangedEvent is published after a password change or reset completes.
type PasswordChangedEvent struct {
	IdentityID string
	ChangedAt  time.Time
	ViaReset   bool
}

// SessionRevokedEvent is published when a session is invalidated.
type SessionRevokedEvent struct {
	IdentityID string
	SessionID  string
	Reason     string
	RevokedAt  time.Time
}

// InvitationRedeemedEvent is published when an invitation accept transition commits.
type InvitationRedeemedEvent struct {
	InvitationID   string
	OrganizationID string
	IdentityID     string
	RoleName       string
	RedeemedAt     time.Time
}

// RolesChangedEvent is published on role assignment or removal.
type RolesChangedEvent struct {
	IdentityID     string
	RoleName       string
	OrganizationID *string
	Assigned       bool
	ChangedAt      time.Time
}
