package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, expiresAt time.Time, origin *string, userAgent *string) error
	BindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error
	Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error
	RevokeAllForIdentity(ctx context.Context, identityID string, reason string, at time.Time) (int, error)
	ListActiveByIdentity(ctx context.Context, identityID string, at time.Time) ([]domain.Session, error)
}
