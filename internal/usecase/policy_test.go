package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

type policyFixture struct {
	svc         *PolicyService
	orgs        *fakeOrgRepo
	assignments *fakeAssignmentRepo
	perms       *fakePermissionRepo
	clock       *time.Time
}

func newPolicyFixture(t *testing.T, at time.Time) *policyFixture {
	t.Helper()

	clock := at
	now := func() time.Time { return clock }

	roles := newFakeRoleRepo(
		domain.Role{ID: "role-super", Name: domain.RoleSuperAdmin, Level: 0, IsSystem: true},
		domain.Role{ID: "role-employee", Name: domain.RoleEmployee, Level: 20, IsSystem: true, IsAssignable: true},
	)
	perms := newFakePermissionRepo()
	perms.add(domain.Permission{ID: "perm-inv-read", Name: "invoice:read", Resource: "invoice", Action: "read"}, "role-employee")

	assignments := &fakeAssignmentRepo{}
	orgs := newFakeOrgRepo(domain.Organization{ID: "org-a", Name: "Org A", OwnerID: "owner-1"})

	rbac := NewRBACService(roles, perms, assignments, &capturedEvents{}, testLogger()).WithClock(now)
	svc := NewPolicyService(rbac, orgs, roles, assignments).WithClock(now)

	return &policyFixture{svc: svc, orgs: orgs, assignments: assignments, perms: perms, clock: &clock}
}

func (f *policyFixture) assignSuperAdmin(identityID string, orgID *string, validUntil *time.Time) {
	f.assignments.assignments = append(f.assignments.assignments, domain.RoleAssignment{
		ID:             "assignment-super-" + identityID,
		IdentityID:     identityID,
		RoleID:         "role-super",
		OrganizationID: orgID,
		ValidUntil:     validUntil,
		AssignedAt:     *f.clock,
	})
}

func TestIsSuperAdmin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPolicyFixture(t, now)

	f.assignSuperAdmin("global-admin", nil, nil)
	f.assignSuperAdmin("scoped-admin", strPtr("org-a"), nil)
	f.assignSuperAdmin("expired-admin", nil, timePtr(now.Add(-time.Hour)))

	cases := []struct {
		identityID string
		want       bool
	}{
		{"global-admin", true},
		{"scoped-admin", false},
		{"expired-admin", false},
		{"nobody", false},
	}
	for _, tc := range cases {
		got, err := f.svc.IsSuperAdmin(ctx, tc.identityID)
		if err != nil {
			t.Fatalf("%s: %v", tc.identityID, err)
		}
		if got != tc.want {
			t.Errorf("IsSuperAdmin(%s) = %v, want %v", tc.identityID, got, tc.want)
		}
	}
}

func TestIsOwner(t *testing.T) {
	ctx := context.Background()
	f := newPolicyFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.orgs.memberships = append(f.orgs.memberships,
		domain.Membership{ID: "m1", OrganizationID: "org-a", IdentityID: "co-owner", IsOwner: true, IsActive: true},
		domain.Membership{ID: "m2", OrganizationID: "org-a", IdentityID: "ex-owner", IsOwner: true, IsActive: false},
		domain.Membership{ID: "m3", OrganizationID: "org-a", IdentityID: "member", IsOwner: false, IsActive: true},
	)

	cases := []struct {
		identityID string
		want       bool
	}{
		{"owner-1", true},
		{"co-owner", true},
		{"ex-owner", false},
		{"member", false},
		{"stranger", false},
	}
	for _, tc := range cases {
		got, err := f.svc.IsOwner(ctx, tc.identityID, "org-a")
		if err != nil {
			t.Fatalf("%s: %v", tc.identityID, err)
		}
		if got != tc.want {
			t.Errorf("IsOwner(%s) = %v, want %v", tc.identityID, got, tc.want)
		}
	}

	if _, err := f.svc.IsOwner(ctx, "owner-1", "no-such-org"); !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("unknown org error = %v, want ErrOrganizationNotFound", err)
	}
}

func TestAuthorizeShortcuts(t *testing.T) {
	ctx := context.Background()
	f := newPolicyFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.assignSuperAdmin("global-admin", nil, nil)

	// Super admin passes any check, even for permissions nobody holds.
	decision, err := f.svc.Authorize(ctx, "global-admin", "anything", "delete", strPtr("org-a"))
	if err != nil || !decision.Allowed {
		t.Fatalf("super admin decision = %+v err = %v", decision, err)
	}

	// The owner passes inside their organization.
	decision, err = f.svc.Authorize(ctx, "owner-1", "anything", "delete", strPtr("org-a"))
	if err != nil || !decision.Allowed {
		t.Fatalf("owner decision = %+v err = %v", decision, err)
	}

	// Ownership does not extend outside the organization scope.
	decision, err = f.svc.Authorize(ctx, "owner-1", "invoice", "read", nil)
	if err != nil {
		t.Fatalf("global authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("owner shortcut must not apply without an organization scope")
	}
}

func TestAuthorizeFallsThroughToRBAC(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPolicyFixture(t, now)
	f.assignments.assignments = append(f.assignments.assignments, domain.RoleAssignment{
		ID: "a1", IdentityID: "member", RoleID: "role-employee", AssignedAt: now,
	})

	decision, err := f.svc.Authorize(ctx, "member", "invoice", "read", strPtr("org-a"))
	if err != nil || !decision.Allowed {
		t.Fatalf("member decision = %+v err = %v", decision, err)
	}

	decision, err = f.svc.Authorize(ctx, "member", "invoice", "write", strPtr("org-a"))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("unheld permission must deny")
	}
}

func TestCheckModuleAccess(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPolicyFixture(t, now)
	f.orgs.modules["org-a/invoicing"] = true
	f.orgs.memberships = append(f.orgs.memberships,
		domain.Membership{ID: "m1", OrganizationID: "org-a", IdentityID: "member", IsActive: true},
		domain.Membership{ID: "m2", OrganizationID: "org-a", IdentityID: "reader", IsActive: true},
	)
	f.orgs.moduleGrants[moduleKey("org-a", "reader", "invoicing")] = &domain.ModuleGrant{
		ID: "grant-1", OrganizationID: "org-a", IdentityID: "reader", ModuleName: "invoicing",
		CanRead: true, GrantedAt: now,
	}

	// Disabled module refuses everyone, owner included.
	if _, err := f.svc.CheckModuleAccess(ctx, "owner-1", "org-a", "payroll", domain.ModulePermissionRead); !errors.Is(err, ErrModuleDisabled) {
		t.Fatalf("disabled module error = %v, want ErrModuleDisabled", err)
	}

	// The owner passes inside an enabled module without a grant.
	decision, err := f.svc.CheckModuleAccess(ctx, "owner-1", "org-a", "invoicing", domain.ModulePermissionDelete)
	if err != nil || !decision.Allowed {
		t.Fatalf("owner decision = %+v err = %v", decision, err)
	}

	// A member without a grant is refused.
	decision, err = f.svc.CheckModuleAccess(ctx, "member", "org-a", "invoicing", domain.ModulePermissionRead)
	if err != nil {
		t.Fatalf("member check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("member without grant must be refused")
	}

	// A grant covers exactly its flagged levels.
	decision, _ = f.svc.CheckModuleAccess(ctx, "reader", "org-a", "invoicing", domain.ModulePermissionRead)
	if !decision.Allowed {
		t.Fatalf("reader read decision = %+v", decision)
	}
	decision, _ = f.svc.CheckModuleAccess(ctx, "reader", "org-a", "invoicing", domain.ModulePermissionWrite)
	if decision.Allowed {
		t.Fatal("read-only grant must not cover write")
	}

	// Non-members are refused even with the module enabled.
	decision, err = f.svc.CheckModuleAccess(ctx, "stranger", "org-a", "invoicing", domain.ModulePermissionRead)
	if err != nil {
		t.Fatalf("stranger check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("non-member must be refused")
	}
}

func TestCheckModuleAccessExpiredGrant(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPolicyFixture(t, now)
	f.orgs.modules["org-a/invoicing"] = true
	f.orgs.memberships = append(f.orgs.memberships,
		domain.Membership{ID: "m1", OrganizationID: "org-a", IdentityID: "member", IsActive: true},
	)
	f.orgs.moduleGrants[moduleKey("org-a", "member", "invoicing")] = &domain.ModuleGrant{
		ID: "grant-1", OrganizationID: "org-a", IdentityID: "member", ModuleName: "invoicing",
		CanRead: true, ExpiresAt: timePtr(now.Add(-time.Minute)), GrantedAt: now.Add(-time.Hour),
	}

	decision, err := f.svc.CheckModuleAccess(ctx, "member", "org-a", "invoicing", domain.ModulePermissionRead)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expired grant must be refused")
	}
}
