package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// TokenRepository manages opaque refresh and remember-me token records.
type TokenRepository interface {
	Create(ctx context.Context, token domain.OpaqueToken) error
	GetByHash(ctx context.Context, kind domain.TokenKind, hash string) (*domain.OpaqueToken, error)
	Revoke(ctx context.Context, tokenID string, at time.Time) error
	RevokeAllForIdentity(ctx context.Context, identityID string, kind domain.TokenKind, at time.Time) (int, error)
}
