package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

const identityColumns = "id, email, password_hash, status, is_active, mfa_enabled, failed_attempts, locked_until, registered_at, last_login, last_password_change, deleted_at"

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository wires a PostgreSQL-backed identity repository.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	repo := &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new identity row. A duplicate email surfaces as
// repository.ErrConflict.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	query := r.builder.Insert("auth.identities").
		Columns(
			"id",
			"email",
			"password_hash",
			"status",
			"is_active",
			"mfa_enabled",
			"failed_attempts",
			"locked_until",
			"registered_at",
			"last_login",
			"last_password_change",
			"deleted_at",
		).
		Values(
			identity.ID,
			identity.Email,
			identity.PasswordHash,
			identity.Status,
			identity.IsActive,
			identity.MFAEnabled,
			identity.FailedAttempts,
			identity.LockedUntil,
			identity.RegisteredAt,
			identity.LastLogin,
			identity.LastPasswordChange,
			identity.DeletedAt,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

func (r *IdentityRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns).
		From("auth.identities").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	return identity, nil
}

// UpdateStatus sets the account status.
func (r *IdentityRepository) UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus) error {
	return r.update(ctx, id, map[string]any{
		"status":    status,
		"is_active": status == domain.IdentityStatusActive,
	}, "update identity status")
}

// UpdatePassword replaces the credential and stamps the change time.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"password_hash":        passwordHash,
		"last_password_change": changedAt,
	}, "update identity password")
}

// UpdateLoginState writes the failure counter, lockout window, and last login.
func (r *IdentityRepository) UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time, lastLogin *time.Time) error {
	return r.update(ctx, id, map[string]any{
		"failed_attempts": failedAttempts,
		"locked_until":    lockedUntil,
		"last_login":      lastLogin,
	}, "update identity login state")
}

// SetMFAEnabled flips the MFA requirement flag.
func (r *IdentityRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, map[string]any{"mfa_enabled": enabled}, "update identity mfa flag")
}

// SoftDelete stamps the deletion time without removing the row.
func (r *IdentityRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"deleted_at": at,
		"is_active":  false,
	}, "soft delete identity")
}

func (r *IdentityRepository) update(ctx context.Context, id string, set map[string]any, label string) error {
	stmt, args, err := r.builder.
		Update("auth.identities").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", label, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Status,
		&identity.IsActive,
		&identity.MFAEnabled,
		&identity.FailedAttempts,
		&identity.LockedUntil,
		&identity.RegisteredAt,
		&identity.LastLogin,
		&identity.LastPasswordChange,
		&identity.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &identity, nil
}

// LoginAttemptRepository implements the durable login attempt ledger.
type LoginAttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginAttemptRepository wires the ledger repository.
func NewLoginAttemptRepository(exec pgExecutor) *LoginAttemptRepository {
	return &LoginAttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends one attempt row.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt domain.LoginAttempt) error {
	stmt, args, err := r.builder.Insert("auth.login_attempts").
		Columns("id", "identity_id", "email", "origin", "user_agent", "succeeded", "created_at").
		Values(attempt.ID, attempt.IdentityID, attempt.Email, attempt.Origin, attempt.UserAgent, attempt.Succeeded, attempt.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

// CountFailedSince counts failures for the email or origin inside a window.
func (r *LoginAttemptRepository) CountFailedSince(ctx context.Context, email string, origin string, since time.Time) (int, error) {
	conditions := squirrel.And{
		squirrel.Eq{"succeeded": false},
		squirrel.GtOrEq{"created_at": since},
	}
	match := squirrel.Or{}
	if email != "" {
		match = append(match, squirrel.Eq{"email": domain.NormalizeEmail(email)})
	}
	if origin != "" {
		match = append(match, squirrel.Eq{"origin": origin})
	}
	if len(match) > 0 {
		conditions = append(conditions, match)
	}

	stmt, args, err := r.builder.
		Select("count(*)").
		From("auth.login_attempts").
		Where(conditions).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count login attempts sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count login attempts: %w", err)
	}
	return count, nil
}
