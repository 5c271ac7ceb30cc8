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

const sessionColumns = "id, identity_id, refresh_token_id, device_id, device_label, origin_first, origin_last, user_agent, created_at, last_activity_at, expires_at, revoked_at, revoke_reason"

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("auth.sessions").
		Columns(
			"id",
			"identity_id",
			"refresh_token_id",
			"device_id",
			"device_label",
			"origin_first",
			"origin_last",
			"user_agent",
			"created_at",
			"last_activity_at",
			"expires_at",
			"revoked_at",
			"revoke_reason",
		).
		Values(
			session.ID,
			session.IdentityID,
			session.RefreshTokenID,
			session.DeviceID,
			session.DeviceLabel,
			session.OriginFirst,
			session.OriginLast,
			session.UserAgent,
			session.CreatedAt,
			session.LastActivityAt,
			session.ExpiresAt,
			session.RevokedAt,
			session.RevokeReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves one session.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns).
		From("auth.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// Touch advances activity metadata. The expiry only ever moves forward:
// the greatest-expiry write wins under concurrency.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, expiresAt time.Time, origin *string, userAgent *string) error {
	query := r.builder.
		Update("auth.sessions").
		Set("last_activity_at", squirrel.Expr("now()")).
		Set("expires_at", squirrel.Expr("greatest(expires_at, ?)", expiresAt)).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL")

	if origin != nil {
		query = query.
			Set("origin_last", *origin).
			Set("origin_first", squirrel.Expr("coalesce(origin_first, ?)", *origin))
	}
	if userAgent != nil {
		query = query.Set("user_agent", *userAgent)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// BindRefreshToken links the session to its current refresh token.
func (r *SessionRepository) BindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error {
	stmt, args, err := r.builder.
		Update("auth.sessions").
		Set("refresh_token_id", refreshTokenID).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build bind refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("bind refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Revoke stamps revocation on a live session.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error {
	stmt, args, err := r.builder.
		Update("auth.sessions").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForIdentity revokes every live session for the identity.
func (r *SessionRepository) RevokeAllForIdentity(ctx context.Context, identityID string, reason string, at time.Time) (int, error) {
	stmt, args, err := r.builder.
		Update("auth.sessions").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"identity_id": identityID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListActiveByIdentity returns live sessions ordered by most recent activity.
func (r *SessionRepository) ListActiveByIdentity(ctx context.Context, identityID string, at time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns).
		From("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		Where("revoked_at IS NULL").
		Where(squirrel.Gt{"expires_at": at}).
		OrderBy("last_activity_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.RefreshTokenID,
		&session.DeviceID,
		&session.DeviceLabel,
		&session.OriginFirst,
		&session.OriginLast,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.RevokeReason,
	); err != nil {
		return nil, err
	}
	return &session, nil
}
