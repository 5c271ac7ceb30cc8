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

const (
	roleColumns       = "id, name, description, parent_role_id, level, is_system, is_assignable"
	permissionColumns = "id, name, resource, action, description"
)

// RoleRepository implements port.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository wires a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert("auth.roles").
		Columns("id", "name", "description", "parent_role_id", "level", "is_system", "is_assignable").
		Values(role.ID, role.Name, role.Description, role.ParentRoleID, role.Level, role.IsSystem, role.IsAssignable).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

// List returns the full role catalog ordered by privilege level.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.
		Select(roleColumns).
		From("auth.roles").
		OrderBy("level ASC, name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.ParentRoleID, &role.Level, &role.IsSystem, &role.IsAssignable); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

// GetByID retrieves a role by identifier.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.
		Select(roleColumns).
		From("auth.roles").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	var role domain.Role
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.Name, &role.Description, &role.ParentRoleID, &role.Level, &role.IsSystem, &role.IsAssignable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return &role, nil
}

// AttachPermissions links permissions to a role, ignoring duplicates.
func (r *RoleRepository) AttachPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}

	query := r.builder.Insert("auth.role_permissions").
		Columns("role_id", "permission_id").
		Suffix("ON CONFLICT DO NOTHING")
	for _, permissionID := range permissionIDs {
		query = query.Values(roleID, permissionID)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build attach permissions sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("attach permissions: %w", err)
	}
	return nil
}

// PermissionRepository implements port.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository wires a PostgreSQL-backed permission repository.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	repo := &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a permission.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert("auth.permissions").
		Columns("id", "name", "resource", "action", "description").
		Values(permission.ID, permission.Name, permission.Resource, permission.Action, permission.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// GetByName retrieves a permission by its unique name.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	stmt, args, err := r.builder.
		Select(permissionColumns).
		From("auth.permissions").
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	var permission domain.Permission
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&permission.ID, &permission.Name, &permission.Resource, &permission.Action, &permission.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}

	return &permission, nil
}

// ListByRole returns the permissions attached directly to one role.
func (r *PermissionRepository) ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error) {
	return r.ListByRoles(ctx, []string{roleID})
}

// ListByRoles returns the deduplicated union of permissions attached
// directly to the roles. Parent roles contribute nothing.
func (r *PermissionRepository) ListByRoles(ctx context.Context, roleIDs []string) ([]domain.Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.
		Select("DISTINCT p.id, p.name, p.resource, p.action, p.description").
		From("auth.permissions p").
		Join("auth.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role permissions sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

// ListByIDs returns permissions by identifier.
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.
		Select(permissionColumns).
		From("auth.permissions").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, stmt string, args []any) ([]domain.Permission, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []domain.Permission
	for rows.Next() {
		var permission domain.Permission
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Resource, &permission.Action, &permission.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

// AssignmentRepository implements port.AssignmentRepository using PostgreSQL.
type AssignmentRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAssignmentRepository wires a PostgreSQL-backed assignment repository.
func NewAssignmentRepository(exec pgExecutor) *AssignmentRepository {
	repo := &AssignmentRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Upsert inserts a role assignment. Re-assigning an identical
// (identity, role, organization) triple leaves the existing row alone.
func (r *AssignmentRepository) Upsert(ctx context.Context, assignment domain.RoleAssignment) error {
	stmt, args, err := r.builder.Insert("auth.role_assignments").
		Columns("id", "identity_id", "role_id", "organization_id", "valid_from", "valid_until", "assigned_by", "assigned_at").
		Values(
			assignment.ID,
			assignment.IdentityID,
			assignment.RoleID,
			assignment.OrganizationID,
			assignment.ValidFrom,
			assignment.ValidUntil,
			assignment.AssignedBy,
			assignment.AssignedAt,
		).
		Suffix("ON CONFLICT (identity_id, role_id, coalesce(organization_id, '')) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert assignment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

// Remove deletes an assignment in the given scope.
func (r *AssignmentRepository) Remove(ctx context.Context, identityID, roleID string, organizationID *string) error {
	query := r.builder.
		Delete("auth.role_assignments").
		Where(squirrel.Eq{"identity_id": identityID, "role_id": roleID})
	if organizationID == nil {
		query = query.Where("organization_id IS NULL")
	} else {
		query = query.Where(squirrel.Eq{"organization_id": *organizationID})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build remove assignment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove assignment: %w", err)
	}
	return nil
}

// ListByIdentity returns all assignments of the identity, any scope.
func (r *AssignmentRepository) ListByIdentity(ctx context.Context, identityID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.
		Select("id", "identity_id", "role_id", "organization_id", "valid_from", "valid_until", "assigned_by", "assigned_at").
		From("auth.role_assignments").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list assignments sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.RoleAssignment
	for rows.Next() {
		var assignment domain.RoleAssignment
		if err := rows.Scan(
			&assignment.ID,
			&assignment.IdentityID,
			&assignment.RoleID,
			&assignment.OrganizationID,
			&assignment.ValidFrom,
			&assignment.ValidUntil,
			&assignment.AssignedBy,
			&assignment.AssignedAt,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}

// ListGrantsByIdentity returns all direct grants of the identity.
func (r *AssignmentRepository) ListGrantsByIdentity(ctx context.Context, identityID string) ([]domain.DirectGrant, error) {
	stmt, args, err := r.builder.
		Select("id", "identity_id", "permission_id", "is_granted", "organization_id", "resource_id", "expires_at", "granted_by", "granted_at").
		From("auth.direct_grants").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list grants sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.DirectGrant
	for rows.Next() {
		var grant domain.DirectGrant
		if err := rows.Scan(
			&grant.ID,
			&grant.IdentityID,
			&grant.PermissionID,
			&grant.IsGranted,
			&grant.OrganizationID,
			&grant.ResourceID,
			&grant.ExpiresAt,
			&grant.GrantedBy,
			&grant.GrantedAt,
		); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}

// CreateGrant inserts a direct grant or deny.
func (r *AssignmentRepository) CreateGrant(ctx context.Context, grant domain.DirectGrant) error {
	stmt, args, err := r.builder.Insert("auth.direct_grants").
		Columns("id", "identity_id", "permission_id", "is_granted", "organization_id", "resource_id", "expires_at", "granted_by", "granted_at").
		Values(
			grant.ID,
			grant.IdentityID,
			grant.PermissionID,
			grant.IsGranted,
			grant.OrganizationID,
			grant.ResourceID,
			grant.ExpiresAt,
			grant.GrantedBy,
			grant.GrantedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// RemoveGrant deletes one direct grant.
func (r *AssignmentRepository) RemoveGrant(ctx context.Context, grantID string) error {
	stmt, args, err := r.builder.
		Delete("auth.direct_grants").
		Where(squirrel.Eq{"id": grantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove grant sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
