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

const tokenColumns = "id, identity_id, kind, token_hash, session_id, device_id, origin, user_agent, created_at, expires_at, revoked_at"

// TokenRepository implements port.TokenRepository using PostgreSQL. Refresh,
// remember-me, and password-reset tokens share one table keyed by kind.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository wires a PostgreSQL-backed token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts an opaque token row.
func (r *TokenRepository) Create(ctx context.Context, token domain.OpaqueToken) error {
	stmt, args, err := r.builder.Insert("auth.opaque_tokens").
		Columns(
			"id",
			"identity_id",
			"kind",
			"token_hash",
			"session_id",
			"device_id",
			"origin",
			"user_agent",
			"created_at",
			"expires_at",
			"revoked_at",
		).
		Values(
			token.ID,
			token.IdentityID,
			token.Kind,
			token.TokenHash,
			token.SessionID,
			token.DeviceID,
			token.Origin,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByHash resolves a token by kind and hash.
func (r *TokenRepository) GetByHash(ctx context.Context, kind domain.TokenKind, hash string) (*domain.OpaqueToken, error) {
	stmt, args, err := r.builder.
		Select(tokenColumns).
		From("auth.opaque_tokens").
		Where(squirrel.Eq{"kind": kind, "token_hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.OpaqueToken
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.IdentityID,
		&token.Kind,
		&token.TokenHash,
		&token.SessionID,
		&token.DeviceID,
		&token.Origin,
		&token.UserAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	return &token, nil
}

// Revoke stamps revoked_at on a live token. Already revoked tokens are left
// untouched so the original revocation time survives.
func (r *TokenRepository) Revoke(ctx context.Context, tokenID string, at time.Time) error {
	stmt, args, err := r.builder.
		Update("auth.opaque_tokens").
		Set("revoked_at", at).
		Where(squirrel.Eq{"id": tokenID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAllForIdentity revokes every live token of one kind for an identity.
func (r *TokenRepository) RevokeAllForIdentity(ctx context.Context, identityID string, kind domain.TokenKind, at time.Time) (int, error) {
	stmt, args, err := r.builder.
		Update("auth.opaque_tokens").
		Set("revoked_at", at).
		Where(squirrel.Eq{"identity_id": identityID, "kind": kind}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
