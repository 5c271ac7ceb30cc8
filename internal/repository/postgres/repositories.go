package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Identities    *IdentityRepository
	LoginAttempts *LoginAttemptRepository
	Tokens        *TokenRepository
	Sessions      *SessionRepository
	Roles         *RoleRepository
	Permissions   *PermissionRepository
	Assignments   *AssignmentRepository
	Organizations *OrganizationRepository
	MFA           *MFARepository
	Invitations   *InvitationRepository
	Audits        *AuditRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Identities:    NewIdentityRepository(pool),
		LoginAttempts: NewLoginAttemptRepository(pool),
		Tokens:        NewTokenRepository(pool),
		Sessions:      NewSessionRepository(pool),
		Roles:         NewRoleRepository(pool),
		Permissions:   NewPermissionRepository(pool),
		Assignments:   NewAssignmentRepository(pool),
		Organizations: NewOrganizationRepository(pool),
		MFA:           NewMFARepository(pool),
		Invitations:   NewInvitationRepository(pool),
		Audits:        NewAuditRepository(pool),
	}
}
