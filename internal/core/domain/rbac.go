package domain

import "time"

// Well-known system role names seeded at provisioning time.
const (
	RoleSuperAdmin = "super_admin"
	RoleOwner      = "owner"
	RoleEmployee   = "employee"
)

// Role defines a named set of permissions. Level orders roles by privilege
// (lower is more privileged); the parent reference and level are advisory
// only. Permission resolution never walks the parent chain.
type Role struct {
	ID           string
	Name         string
	Description  *string
	ParentRoleID *string
	Level        int
	IsSystem     bool
	IsAssignable bool
}

// Permission defines a (resource, action) capability with a unique name.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description *string
}

// RolePermission links a role with a permission.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// RoleAssignment binds an identity to a role, optionally scoped to an
// organization and bounded by a validity window. Unique per
// (identity, role, organization).
type RoleAssignment struct {
	ID             string
	IdentityID     string
	RoleID         string
	OrganizationID *string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	AssignedBy     *string
	AssignedAt     time.Time
}

// IsValidAt reports whether the assignment's validity window contains the moment.
func (a RoleAssignment) IsValidAt(at time.Time) bool {
	if a.ValidFrom != nil && a.ValidFrom.After(at) {
		return false
	}
	if a.ValidUntil != nil && !a.ValidUntil.After(at) {
		return false
	}
	return true
}

// AppliesToScope reports whether the assignment covers the requested
// organization scope. A nil assignment scope is global and matches everything.
func (a RoleAssignment) AppliesToScope(organizationID *string) bool {
	if a.OrganizationID == nil {
		return true
	}
	return organizationID != nil && *a.OrganizationID == *organizationID
}

// DirectGrant attaches a permission straight to an identity. IsGranted=false
// is an explicit deny and overrides any grant for the same (resource, action)
// in a matching scope.
type DirectGrant struct {
	ID             string
	IdentityID     string
	PermissionID   string
	IsGranted      bool
	OrganizationID *string
	ResourceID     *string
	ExpiresAt      *time.Time
	GrantedBy      *string
	GrantedAt      time.Time
}

// IsValidAt reports whether the grant has not lazily expired.
func (g DirectGrant) IsValidAt(at time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(at)
}

// AppliesToScope mirrors RoleAssignment scope matching.
func (g DirectGrant) AppliesToScope(organizationID *string) bool {
	if g.OrganizationID == nil {
		return true
	}
	return organizationID != nil && *g.OrganizationID == *organizationID
}
