package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

const membershipColumns = "id, organization_id, identity_id, role_name, is_owner, is_active, joined_at"

// OrganizationRepository implements port.OrganizationRepository using PostgreSQL.
type OrganizationRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOrganizationRepository wires a PostgreSQL-backed organization repository.
func NewOrganizationRepository(exec pgExecutor) *OrganizationRepository {
	repo := &OrganizationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByID retrieves an organization.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	stmt, args, err := r.builder.
		Select("id", "name", "owner_id", "created_at", "deleted_at").
		From("auth.organizations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select organization sql: %w", err)
	}

	var org domain.Organization
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&org.ID, &org.Name, &org.OwnerID, &org.CreatedAt, &org.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}

	return &org, nil
}

// GetMembership retrieves the identity's membership in the organization.
func (r *OrganizationRepository) GetMembership(ctx context.Context, organizationID, identityID string) (*domain.Membership, error) {
	stmt, args, err := r.builder.
		Select(membershipColumns).
		From("auth.memberships").
		Where(squirrel.Eq{"organization_id": organizationID, "identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select membership sql: %w", err)
	}

	return r.scanMembershipRow(r.exec.QueryRow(ctx, stmt, args...))
}

// GetMembershipByEmail resolves membership through the identity's email.
// Used by invitation issuance before the invitee has an account reference.
func (r *OrganizationRepository) GetMembershipByEmail(ctx context.Context, organizationID, email string) (*domain.Membership, error) {
	stmt, args, err := r.builder.
		Select("m.id, m.organization_id, m.identity_id, m.role_name, m.is_owner, m.is_active, m.joined_at").
		From("auth.memberships m").
		Join("auth.identities i ON i.id = m.identity_id").
		Where(squirrel.Eq{"m.organization_id": organizationID, "i.email": domain.NormalizeEmail(email)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select membership by email sql: %w", err)
	}

	return r.scanMembershipRow(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *OrganizationRepository) scanMembershipRow(row pgx.Row) (*domain.Membership, error) {
	var membership domain.Membership
	err := row.Scan(
		&membership.ID,
		&membership.OrganizationID,
		&membership.IdentityID,
		&membership.RoleName,
		&membership.IsOwner,
		&membership.IsActive,
		&membership.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &membership, nil
}

// AddMember inserts a membership row.
func (r *OrganizationRepository) AddMember(ctx context.Context, membership domain.Membership) error {
	stmt, args, err := r.builder.Insert("auth.memberships").
		Columns(membershipColumns).
		Values(
			membership.ID,
			membership.OrganizationID,
			membership.IdentityID,
			membership.RoleName,
			membership.IsOwner,
			membership.IsActive,
			membership.JoinedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert membership sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// IsModuleEnabled reports whether the tenant has the module switched on.
func (r *OrganizationRepository) IsModuleEnabled(ctx context.Context, organizationID, moduleName string) (bool, error) {
	stmt, args, err := r.builder.
		Select("is_enabled").
		From("auth.organization_modules").
		Where(squirrel.Eq{"organization_id": organizationID, "module_name": moduleName}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select module sql: %w", err)
	}

	var enabled bool
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan module flag: %w", err)
	}

	return enabled, nil
}

// GetModuleGrant retrieves a member's grant for one module.
func (r *OrganizationRepository) GetModuleGrant(ctx context.Context, organizationID, identityID, moduleName string) (*domain.ModuleGrant, error) {
	stmt, args, err := r.builder.
		Select("id", "organization_id", "identity_id", "module_name", "can_read", "can_write", "can_delete", "expires_at", "granted_by", "granted_at").
		From("auth.module_grants").
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"identity_id":     identityID,
			"module_name":     moduleName,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select module grant sql: %w", err)
	}

	var grant domain.ModuleGrant
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&grant.ID,
		&grant.OrganizationID,
		&grant.IdentityID,
		&grant.ModuleName,
		&grant.CanRead,
		&grant.CanWrite,
		&grant.CanDelete,
		&grant.ExpiresAt,
		&grant.GrantedBy,
		&grant.GrantedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan module grant: %w", err)
	}

	return &grant, nil
}

// UpsertModuleGrant inserts or replaces the member's module access flags.
func (r *OrganizationRepository) UpsertModuleGrant(ctx context.Context, grant domain.ModuleGrant) error {
	stmt, args, err := r.builder.Insert("auth.module_grants").
		Columns("id", "organization_id", "identity_id", "module_name", "can_read", "can_write", "can_delete", "expires_at", "granted_by", "granted_at").
		Values(
			grant.ID,
			grant.OrganizationID,
			grant.IdentityID,
			grant.ModuleName,
			grant.CanRead,
			grant.CanWrite,
			grant.CanDelete,
			grant.ExpiresAt,
			grant.GrantedBy,
			grant.GrantedAt,
		).
		Suffix("ON CONFLICT (organization_id, identity_id, module_name) DO UPDATE SET can_read = EXCLUDED.can_read, can_write = EXCLUDED.can_write, can_delete = EXCLUDED.can_delete, expires_at = EXCLUDED.expires_at, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert module grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert module grant: %w", err)
	}
	return nil
}
