package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrRoleNotFound indicates the named role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleNotAssignable indicates the role is flagged non-assignable.
	ErrRoleNotAssignable = errors.New("role is not assignable")
	// ErrPermissionNotFound indicates the named permission does not exist.
	ErrPermissionNotFound = errors.New("permission not found")
)

// Decision is the outcome of a permission check with its reason.
type Decision struct {
	Allowed bool
	Reason  string
}

// PermissionSet is the resolved effective permission names of an identity
// within one scope.
type PermissionSet map[string]domain.Permission

// Has reports whether the set contains the named permission.
func (p PermissionSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Names returns the sorted-insertion list of permission names.
func (p PermissionSet) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	return names
}

// RBACService resolves effective permissions and manages role assignments.
// Resolution is flat: a role contributes exactly its directly attached
// permissions, never its parent's. Explicit direct denies win over any grant.
type RBACService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	assignments port.AssignmentRepository
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewRBACService constructs an RBACService.
func NewRBACService(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	assignments port.AssignmentRepository,
	events port.EventPublisher,
	logger *zap.Logger,
) *RBACService {
	return &RBACService{
		roles:       roles,
		permissions: permissions,
		assignments: assignments,
		events:      events,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *RBACService) WithClock(clock func() time.Time) *RBACService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ResolvePermissions computes the effective permission set of an identity for
// an optional organization scope. Global assignments apply everywhere;
// scoped assignments apply only within their organization. Direct grants are
// unioned in, then explicit denies are subtracted last.
func (s *RBACService) ResolvePermissions(ctx context.Context, identityID string, organizationID *string) (PermissionSet, error) {
	now := s.now()

	assignments, err := s.assignments.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}

	roleIDs := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		if !assignment.IsValidAt(now) || !assignment.AppliesToScope(organizationID) {
			continue
		}
		roleIDs = append(roleIDs, assignment.RoleID)
	}

	set := make(PermissionSet)
	if len(roleIDs) > 0 {
		perms, err := s.permissions.ListByRoles(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}
		for _, perm := range perms {
			set[perm.Name] = perm
		}
	}

	grants, err := s.assignments.ListGrantsByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list direct grants: %w", err)
	}

	var granted, denied []domain.DirectGrant
	for _, grant := range grants {
		if !grant.IsValidAt(now) || !grant.AppliesToScope(organizationID) {
			continue
		}
		if grant.IsGranted {
			granted = append(granted, grant)
		} else {
			denied = append(denied, grant)
		}
	}

	if err := s.applyGrants(ctx, set, granted, true); err != nil {
		return nil, err
	}
	if err := s.applyGrants(ctx, set, denied, false); err != nil {
		return nil, err
	}

	return set, nil
}

func (s *RBACService) applyGrants(ctx context.Context, set PermissionSet, grants []domain.DirectGrant, add bool) error {
	if len(grants) == 0 {
		return nil
	}

	ids := make([]string, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.PermissionID)
	}

	perms, err := s.permissions.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve grant permissions: %w", err)
	}

	for _, perm := range perms {
		if add {
			set[perm.Name] = perm
		} else {
			delete(set, perm.Name)
		}
	}
	return nil
}

// CheckPermission evaluates one (resource, action) against the resolved set.
// Resolution failures deny.
func (s *RBACService) CheckPermission(ctx context.Context, identityID, resource, action string, organizationID *string) (Decision, error) {
	set, err := s.ResolvePermissions(ctx, identityID, organizationID)
	if err != nil {
		return Decision{Allowed: false, Reason: "resolution failed"}, err
	}

	name := resource + ":" + action
	if set.Has(name) {
		return Decision{Allowed: true, Reason: "permission " + name}, nil
	}
	return Decision{Allowed: false, Reason: "missing permission " + name}, nil
}

// RoleNames returns the names of roles assigned to the identity and valid
// now within the scope. Used for access token claims.
func (s *RBACService) RoleNames(ctx context.Context, identityID string, organizationID *string) ([]string, error) {
	assignments, err := s.assignments.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}

	catalog, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	byID := make(map[string]domain.Role, len(catalog))
	for _, role := range catalog {
		byID[role.ID] = role
	}

	now := s.now()
	seen := make(map[string]struct{})
	names := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		if !assignment.IsValidAt(now) || !assignment.AppliesToScope(organizationID) {
			continue
		}
		role, ok := byID[assignment.RoleID]
		if !ok {
			continue
		}
		if _, dup := seen[role.Name]; dup {
			continue
		}
		seen[role.Name] = struct{}{}
		names = append(names, role.Name)
	}

	return names, nil
}

// AssignRole binds a role to an identity, optionally scoped to an
// organization. Assigning an already held role is an idempotent no-op.
func (s *RBACService) AssignRole(ctx context.Context, identityID, roleName string, organizationID *string, assignedBy *string) error {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}
	if !role.IsAssignable {
		return ErrRoleNotAssignable
	}

	now := s.now()
	assignment := domain.RoleAssignment{
		ID:             uuid.NewString(),
		IdentityID:     identityID,
		RoleID:         role.ID,
		OrganizationID: organizationID,
		AssignedBy:     assignedBy,
		AssignedAt:     now,
	}

	if err := s.assignments.Upsert(ctx, assignment); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	s.publishRolesChanged(ctx, identityID, role.Name, organizationID, true, now)
	return nil
}

// RemoveRole removes a role assignment in the given scope.
func (s *RBACService) RemoveRole(ctx context.Context, identityID, roleName string, organizationID *string) error {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if err := s.assignments.Remove(ctx, identityID, role.ID, organizationID); err != nil {
		return fmt.Errorf("remove role: %w", err)
	}

	s.publishRolesChanged(ctx, identityID, role.Name, organizationID, false, s.now())
	return nil
}

// GrantPermission attaches a permission directly to an identity.
// isGranted=false records an explicit deny that overrides role grants.
func (s *RBACService) GrantPermission(ctx context.Context, identityID, permissionName string, isGranted bool, organizationID *string, expiresAt *time.Time, grantedBy *string) error {
	perm, err := s.permissions.GetByName(ctx, permissionName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("lookup permission: %w", err)
	}

	grant := domain.DirectGrant{
		ID:             uuid.NewString(),
		IdentityID:     identityID,
		PermissionID:   perm.ID,
		IsGranted:      isGranted,
		OrganizationID: organizationID,
		ExpiresAt:      expiresAt,
		GrantedBy:      grantedBy,
		GrantedAt:      s.now(),
	}

	if err := s.assignments.CreateGrant(ctx, grant); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (s *RBACService) publishRolesChanged(ctx context.Context, identityID, roleName string, organizationID *string, assigned bool, at time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.PublishRolesChanged(ctx, domain.RolesChangedEvent{
		IdentityID:     identityID,
		RoleName:       roleName,
		OrganizationID: organizationID,
		Assigned:       assigned,
		ChangedAt:      at,
	})
	if err != nil {
		s.logger.Warn("publish roles changed event", zap.Error(err))
	}
}
