package port

import (
	"context"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// RoleRepository handles role and role-permission storage.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	List(ctx context.Context) ([]domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	AttachPermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionRepository manages the static permission catalog.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) error
	GetByName(ctx context.Context, name string) (*domain.Permission, error)
	ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error)
	ListByRoles(ctx context.Context, roleIDs []string) ([]domain.Permission, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error)
}

// AssignmentRepository stores role assignments and direct grants.
type AssignmentRepository interface {
	// Upsert is an idempotent insert keyed (identity, role, organization).
	Upsert(ctx context.Context, assignment domain.RoleAssignment) error
	Remove(ctx context.Context, identityID, roleID string, organizationID *string) error
	ListByIdentity(ctx context.Context, identityID string) ([]domain.RoleAssignment, error)
	ListGrantsByIdentity(ctx context.Context, identityID string) ([]domain.DirectGrant, error)
	CreateGrant(ctx context.Context, grant domain.DirectGrant) error
	RemoveGrant(ctx context.Context, grantID string) error
}
