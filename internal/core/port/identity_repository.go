package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for identities.
// Create enforces email uniqueness atomically.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time, lastLogin *time.Time) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// LoginAttemptRepository is the write-only ledger behind the rate limit guard.
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt domain.LoginAttempt) error
	CountFailedSince(ctx context.Context, email string, origin string, since time.Time) (int, error)
}
