package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// MFARepository persists enrollments and backup codes.
type MFARepository interface {
	CreateEnrollment(ctx context.Context, enrollment domain.MFAEnrollment) error
	GetEnrollment(ctx context.Context, identityID string, method domain.MFAMethod) (*domain.MFAEnrollment, error)
	ListEnrollments(ctx context.Context, identityID string) ([]domain.MFAEnrollment, error)
	MarkVerified(ctx context.Context, enrollmentID string, primary bool, at time.Time) error
	DeleteAllForIdentity(ctx context.Context, identityID string) error

	ReplaceBackupCodes(ctx context.Context, identityID string, codes []domain.BackupCode) error
	ListUnusedBackupCodes(ctx context.Context, identityID string) ([]domain.BackupCode, error)
	// ConsumeBackupCode atomically flips is_used; returns false when the code
	// was already consumed by a racing caller.
	ConsumeBackupCode(ctx context.Context, codeID string, at time.Time) (bool, error)
}

// ChallengeStore keeps ephemeral one-time-code challenges, hashed, with a
// monotonically decreasing attempt budget and a hard TTL.
type ChallengeStore interface {
	Put(ctx context.Context, challenge domain.MFAChallenge, ttl time.Duration) error
	Get(ctx context.Context, identityID string, method domain.MFAMethod) (*domain.MFAChallenge, error)
	// DecrementAttempts returns the remaining budget after the decrement.
	DecrementAttempts(ctx context.Context, identityID string, method domain.MFAMethod) (int, error)
	// Consume removes the challenge; single-use is enforced by the deletion
	// being conditional on existence.
	Consume(ctx context.Context, identityID string, method domain.MFAMethod) error
	DeleteAllForIdentity(ctx context.Context, identityID string) error
}
