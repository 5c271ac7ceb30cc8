package domain

import "time"

// Organization is the tenant boundary for scoped role assignments and grants.
type Organization struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Membership records an identity's participation in an organization.
type Membership struct {
	ID             string
	OrganizationID string
	IdentityID     string
	RoleName       string
	IsOwner        bool
	IsActive       bool
	JoinedAt       time.Time
}

// ModulePermission is the per-member access level inside an enabled module.
type ModulePermission string

const (
	ModulePermissionRead   ModulePermission = "read"
	ModulePermissionWrite  ModulePermission = "write"
	ModulePermissionDelete ModulePermission = "delete"
)

// OrganizationModule flags a feature module as enabled for a tenant.
type OrganizationModule struct {
	OrganizationID string
	ModuleName     string
	IsEnabled      bool
	EnabledAt      time.Time
}

// ModuleGrant holds a member's read/write/delete flags for one module,
// optionally time-bound. Expired grants are excluded lazily at query time.
type ModuleGrant struct {
	ID             string
	OrganizationID string
	IdentityID     string
	ModuleName     string
	CanRead        bool
	CanWrite       bool
	CanDelete      bool
	ExpiresAt      *time.Time
	GrantedBy      *string
	GrantedAt      time.Time
}

// Allows reports whether the grant covers the requested access level at the moment.
func (g ModuleGrant) Allows(perm ModulePermission, at time.Time) bool {
	if g.ExpiresAt != nil && !g.ExpiresAt.After(at) {
		return false
	}
	switch perm {
	case ModulePermissionRead:
		return g.CanRead
	case ModulePermissionWrite:
		return g.CanWrite
	case ModulePermissionDelete:
		return g.CanDelete
	default:
		return false
	}
}
