package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

const invitationColumns = "id, email, organization_id, role_name, lookup_digest, verification_hash, sealed_token, invited_by, created_at, expires_at, used_at, redeemed_by"

// pgTxStarter is the slice of pgxpool.Pool the accept transition needs to
// open transactions.
type pgTxStarter interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InvitationRepository implements port.InvitationRepository using PostgreSQL.
type InvitationRepository struct {
	pool    pgTxStarter
	builder squirrel.StatementBuilderType
}

// NewInvitationRepository wires a PostgreSQL-backed invitation repository.
func NewInvitationRepository(pool pgTxStarter) *InvitationRepository {
	return &InvitationRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts an invitation row.
func (r *InvitationRepository) Create(ctx context.Context, invitation domain.Invitation) error {
	stmt, args, err := r.builder.Insert("auth.invitations").
		Columns(
			"id",
			"email",
			"organization_id",
			"role_name",
			"lookup_digest",
			"verification_hash",
			"sealed_token",
			"invited_by",
			"created_at",
			"expires_at",
			"used_at",
			"redeemed_by",
		).
		Values(
			invitation.ID,
			invitation.Email,
			invitation.OrganizationID,
			invitation.RoleName,
			invitation.LookupDigest,
			invitation.VerificationHash,
			invitation.SealedToken,
			invitation.InvitedBy,
			invitation.CreatedAt,
			invitation.ExpiresAt,
			invitation.UsedAt,
			invitation.RedeemedBy,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert invitation sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// GetByLookupDigest resolves an invitation by its deterministic digest.
func (r *InvitationRepository) GetByLookupDigest(ctx context.Context, digest string) (*domain.Invitation, error) {
	return r.getOne(ctx, squirrel.Eq{"lookup_digest": digest})
}

// GetByID retrieves an invitation by identifier.
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *InvitationRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.Invitation, error) {
	stmt, args, err := r.builder.
		Select(invitationColumns).
		From("auth.invitations").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select invitation sql: %w", err)
	}

	invitation, err := scanInvitation(r.pool.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	return invitation, nil
}

// GetLive returns the unredeemed, unexpired invitation for the pair, if any.
func (r *InvitationRepository) GetLive(ctx context.Context, email, organizationID string, at time.Time) (*domain.Invitation, error) {
	return r.getOne(ctx, squirrel.And{
		squirrel.Eq{"email": domain.NormalizeEmail(email), "organization_id": organizationID},
		squirrel.Expr("used_at IS NULL"),
		squirrel.Gt{"expires_at": at},
	})
}

// ConsumeAndGrant marks the invitation used and inserts the membership in
// one transaction. The conditional update on used_at IS NULL is the
// single-use gate: under concurrent redemptions exactly one caller sees a
// row flip and commits the membership.
func (r *InvitationRepository) ConsumeAndGrant(ctx context.Context, invitationID string, membership domain.Membership, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin consume invitation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.
		Update("auth.invitations").
		Set("used_at", at).
		Set("redeemed_by", membership.IdentityID).
		Where(squirrel.Eq{"id": invitationID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume invitation sql: %w", err)
	}

	tag, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	stmt, args, err = r.builder.Insert("auth.memberships").
		Columns("id", "organization_id", "identity_id", "role_name", "is_owner", "is_active", "joined_at").
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
		return false, fmt.Errorf("build insert membership sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return false, repository.ErrConflict
		}
		return false, fmt.Errorf("insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit consume invitation: %w", err)
	}
	return true, nil
}

// MarkUsed flips used_at without granting membership. Returns false when the
// invitation was already consumed.
func (r *InvitationRepository) MarkUsed(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.
		Update("auth.invitations").
		Set("used_at", at).
		Where(squirrel.Eq{"id": invitationID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark invitation used sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("mark invitation used: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var invitation domain.Invitation
	if err := row.Scan(
		&invitation.ID,
		&invitation.Email,
		&invitation.OrganizationID,
		&invitation.RoleName,
		&invitation.LookupDigest,
		&invitation.VerificationHash,
		&invitation.SealedToken,
		&invitation.InvitedBy,
		&invitation.CreatedAt,
		&invitation.ExpiresAt,
		&invitation.UsedAt,
		&invitation.RedeemedBy,
	); err != nil {
		return nil, err
	}
	return &invitation, nil
}
