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

const enrollmentColumns = "id, identity_id, method, secret, address, is_verified, is_primary, created_at, verified_at"

// MFARepository implements port.MFARepository using PostgreSQL.
type MFARepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewMFARepository wires a PostgreSQL-backed MFA repository. Backup code
// replacement and full teardown need a pool-backed instance for transactions.
func NewMFARepository(pool *pgxpool.Pool) *MFARepository {
	return &MFARepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateEnrollment inserts one (identity, method) factor.
func (r *MFARepository) CreateEnrollment(ctx context.Context, enrollment domain.MFAEnrollment) error {
	stmt, args, err := r.builder.Insert("auth.mfa_enrollments").
		Columns("id", "identity_id", "method", "secret", "address", "is_verified", "is_primary", "created_at", "verified_at").
		Values(
			enrollment.ID,
			enrollment.IdentityID,
			enrollment.Method,
			enrollment.Secret,
			enrollment.Address,
			enrollment.IsVerified,
			enrollment.IsPrimary,
			enrollment.CreatedAt,
			enrollment.VerifiedAt,
		).
		Suffix("ON CONFLICT (identity_id, method) DO UPDATE SET id = EXCLUDED.id, secret = EXCLUDED.secret, address = EXCLUDED.address, is_verified = false, is_primary = false, created_at = EXCLUDED.created_at, verified_at = NULL WHERE auth.mfa_enrollments.is_verified = false").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert enrollment sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// GetEnrollment retrieves a factor by identity and method.
func (r *MFARepository) GetEnrollment(ctx context.Context, identityID string, method domain.MFAMethod) (*domain.MFAEnrollment, error) {
	stmt, args, err := r.builder.
		Select(enrollmentColumns).
		From("auth.mfa_enrollments").
		Where(squirrel.Eq{"identity_id": identityID, "method": method}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select enrollment sql: %w", err)
	}

	enrollment, err := scanEnrollment(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	return enrollment, nil
}

// ListEnrollments returns every factor of the identity.
func (r *MFARepository) ListEnrollments(ctx context.Context, identityID string) ([]domain.MFAEnrollment, error) {
	stmt, args, err := r.builder.
		Select(enrollmentColumns).
		From("auth.mfa_enrollments").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list enrollments sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []domain.MFAEnrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, *enrollment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}

	return enrollments, nil
}

// MarkVerified confirms an enrollment, optionally promoting it to primary.
func (r *MFARepository) MarkVerified(ctx context.Context, enrollmentID string, primary bool, at time.Time) error {
	stmt, args, err := r.builder.
		Update("auth.mfa_enrollments").
		Set("is_verified", true).
		Set("is_primary", primary).
		Set("verified_at", at).
		Where(squirrel.Eq{"id": enrollmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark verified sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark enrollment verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAllForIdentity removes every enrollment and backup code of the
// identity in one transaction.
func (r *MFARepository) DeleteAllForIdentity(ctx context.Context, identityID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mfa teardown: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"auth.mfa_backup_codes", "auth.mfa_enrollments"} {
		stmt, args, err := r.builder.
			Delete(table).
			Where(squirrel.Eq{"identity_id": identityID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete %s sql: %w", table, err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mfa teardown: %w", err)
	}
	return nil
}

// ReplaceBackupCodes swaps the identity's whole recovery code set atomically.
func (r *MFARepository) ReplaceBackupCodes(ctx context.Context, identityID string, codes []domain.BackupCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace backup codes: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.
		Delete("auth.mfa_backup_codes").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	if len(codes) > 0 {
		query := r.builder.Insert("auth.mfa_backup_codes").
			Columns("id", "identity_id", "code_hash", "is_used", "created_at", "used_at")
		for _, code := range codes {
			query = query.Values(code.ID, code.IdentityID, code.CodeHash, code.IsUsed, code.CreatedAt, code.UsedAt)
		}

		stmt, args, err = query.ToSql()
		if err != nil {
			return fmt.Errorf("build insert backup codes sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert backup codes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace backup codes: %w", err)
	}
	return nil
}

// ListUnusedBackupCodes returns the identity's remaining recovery codes.
func (r *MFARepository) ListUnusedBackupCodes(ctx context.Context, identityID string) ([]domain.BackupCode, error) {
	stmt, args, err := r.builder.
		Select("id", "identity_id", "code_hash", "is_used", "created_at", "used_at").
		From("auth.mfa_backup_codes").
		Where(squirrel.Eq{"identity_id": identityID, "is_used": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list backup codes sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var code domain.BackupCode
		if err := rows.Scan(&code.ID, &code.IdentityID, &code.CodeHash, &code.IsUsed, &code.CreatedAt, &code.UsedAt); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup codes: %w", err)
	}

	return codes, nil
}

// ConsumeBackupCode flips is_used under the same conditional-update gate as
// invitations: the losing racer sees zero rows affected.
func (r *MFARepository) ConsumeBackupCode(ctx context.Context, codeID string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.
		Update("auth.mfa_backup_codes").
		Set("is_used", true).
		Set("used_at", at).
		Where(squirrel.Eq{"id": codeID}).
		Where("is_used = false").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume backup code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanEnrollment(row pgx.Row) (*domain.MFAEnrollment, error) {
	var enrollment domain.MFAEnrollment
	if err := row.Scan(
		&enrollment.ID,
		&enrollment.IdentityID,
		&enrollment.Method,
		&enrollment.Secret,
		&enrollment.Address,
		&enrollment.IsVerified,
		&enrollment.IsPrimary,
		&enrollment.CreatedAt,
		&enrollment.VerifiedAt,
	); err != nil {
		return nil, err
	}
	return &enrollment, nil
}
