package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrOrganizationNotFound indicates the tenant does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrNotMember indicates the identity has no active membership.
	ErrNotMember = errors.New("not a member of organization")
	// ErrModuleDisabled indicates the module is not enabled for the tenant.
	ErrModuleDisabled = errors.New("module not enabled for organization")
)

// PolicyService layers tenancy shortcuts over RBAC resolution: the platform
// super-admin and the organization owner bypass per-permission checks, and
// module access combines tenant enablement with per-member grants.
// Super-admin status comes solely from holding the super_admin role with
// global scope; no other mechanism confers it.
type PolicyService struct {
	rbac          *RBACService
	organizations port.OrganizationRepository
	roles         port.RoleRepository
	assignments   port.AssignmentRepository
	now           func() time.Time
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(rbac *RBACService, organizations port.OrganizationRepository, roles port.RoleRepository, assignments port.AssignmentRepository) *PolicyService {
	return &PolicyService{
		rbac:          rbac,
		organizations: organizations,
		roles:         roles,
		assignments:   assignments,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *PolicyService) WithClock(clock func() time.Time) *PolicyService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IsSuperAdmin reports whether the identity holds a currently valid,
// globally scoped super_admin role assignment.
func (s *PolicyService) IsSuperAdmin(ctx context.Context, identityID string) (bool, error) {
	role, err := s.roles.GetByName(ctx, domain.RoleSuperAdmin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup super admin role: %w", err)
	}

	assignments, err := s.assignments.ListByIdentity(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("list role assignments: %w", err)
	}

	now := s.now()
	for _, assignment := range assignments {
		if assignment.RoleID != role.ID {
			continue
		}
		if assignment.OrganizationID != nil {
			continue
		}
		if assignment.IsValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// IsOwner reports whether the identity owns the organization, either through
// the ownership column or an owner-flagged active membership.
func (s *PolicyService) IsOwner(ctx context.Context, identityID, organizationID string) (bool, error) {
	org, err := s.organizations.GetByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrOrganizationNotFound
		}
		return false, fmt.Errorf("lookup organization: %w", err)
	}
	if org.DeletedAt != nil {
		return false, ErrOrganizationNotFound
	}
	if org.OwnerID == identityID {
		return true, nil
	}

	membership, err := s.organizations.GetMembership(ctx, organizationID, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup membership: %w", err)
	}
	return membership.IsActive && membership.IsOwner, nil
}

// RequireMember resolves the identity's active membership in the tenant.
func (s *PolicyService) RequireMember(ctx context.Context, identityID, organizationID string) (*domain.Membership, error) {
	membership, err := s.organizations.GetMembership(ctx, organizationID, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	if !membership.IsActive {
		return nil, ErrNotMember
	}
	return membership, nil
}

// Authorize evaluates access to (resource, action), applying shortcuts in
// order: super-admin allows everything, the owner allows everything inside
// their organization, and everything else falls through to RBAC resolution.
// Any evaluation failure denies.
func (s *PolicyService) Authorize(ctx context.Context, identityID, resource, action string, organizationID *string) (Decision, error) {
	super, err := s.IsSuperAdmin(ctx, identityID)
	if err != nil {
		return Decision{Allowed: false, Reason: "evaluation failed"}, err
	}
	if super {
		return Decision{Allowed: true, Reason: "super admin"}, nil
	}

	if organizationID != nil {
		owner, err := s.IsOwner(ctx, identityID, *organizationID)
		if err != nil && !errors.Is(err, ErrOrganizationNotFound) {
			return Decision{Allowed: false, Reason: "evaluation failed"}, err
		}
		if err == nil && owner {
			return Decision{Allowed: true, Reason: "organization owner"}, nil
		}
	}

	return s.rbac.CheckPermission(ctx, identityID, resource, action, organizationID)
}

// CheckModuleAccess evaluates module-level access inside a tenant. The module
// must be enabled for the organization; super-admins and owners then pass,
// members need a live grant covering the requested level.
func (s *PolicyService) CheckModuleAccess(ctx context.Context, identityID, organizationID, moduleName string, perm domain.ModulePermission) (Decision, error) {
	enabled, err := s.organizations.IsModuleEnabled(ctx, organizationID, moduleName)
	if err != nil {
		return Decision{Allowed: false, Reason: "evaluation failed"}, fmt.Errorf("check module enabled: %w", err)
	}
	if !enabled {
		return Decision{Allowed: false, Reason: "module disabled"}, ErrModuleDisabled
	}

	super, err := s.IsSuperAdmin(ctx, identityID)
	if err != nil {
		return Decision{Allowed: false, Reason: "evaluation failed"}, err
	}
	if super {
		return Decision{Allowed: true, Reason: "super admin"}, nil
	}

	owner, err := s.IsOwner(ctx, identityID, organizationID)
	if err != nil {
		return Decision{Allowed: false, Reason: "evaluation failed"}, err
	}
	if owner {
		return Decision{Allowed: true, Reason: "organization owner"}, nil
	}

	if _, err := s.RequireMember(ctx, identityID, organizationID); err != nil {
		if errors.Is(err, ErrNotMember) {
			return Decision{Allowed: false, Reason: "not a member"}, nil
		}
		return Decision{Allowed: false, Reason: "evaluation failed"}, err
	}

	grant, err := s.organizations.GetModuleGrant(ctx, organizationID, identityID, moduleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Decision{Allowed: false, Reason: "no module grant"}, nil
		}
		return Decision{Allowed: false, Reason: "evaluation failed"}, fmt.Errorf("lookup module grant: %w", err)
	}

	if !grant.Allows(perm, s.now()) {
		return Decision{Allowed: false, Reason: "grant does not cover " + string(perm)}, nil
	}
	return Decision{Allowed: true, Reason: "module grant"}, nil
}
