package port

import (
	"context"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// OrganizationRepository exposes the tenant surface the core needs.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetMembership(ctx context.Context, organizationID, identityID string) (*domain.Membership, error)
	GetMembershipByEmail(ctx context.Context, organizationID, email string) (*domain.Membership, error)
	AddMember(ctx context.Context, membership domain.Membership) error
	IsModuleEnabled(ctx context.Context, organizationID, moduleName string) (bool, error)
	GetModuleGrant(ctx context.Context, organizationID, identityID, moduleName string) (*domain.ModuleGrant, error)
	UpsertModuleGrant(ctx context.Context, grant domain.ModuleGrant) error
}
