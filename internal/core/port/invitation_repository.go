package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// InvitationRepository stores single-use onboarding tokens.
type InvitationRepository interface {
	Create(ctx context.Context, invitation domain.Invitation) error
	GetByLookupDigest(ctx context.Context, digest string) (*domain.Invitation, error)
	GetLive(ctx context.Context, email, organizationID string, at time.Time) (*domain.Invitation, error)
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	// ConsumeAndGrant performs the accept transition atomically: mark used
	// (conditional on used_at IS NULL) and insert the membership in one
	// transaction. Returns false when another redemption already won.
	ConsumeAndGrant(ctx context.Context, invitationID string, membership domain.Membership, at time.Time) (bool, error)
	// MarkUsed flips used_at without granting membership (revocation).
	MarkUsed(ctx context.Context, invitationID string, at time.Time) (bool, error)
}
