package port

import (
	"context"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// AuditRepository is the append-only audit sink and its query surface.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
	Aggregate(ctx context.Context, from, to time.Time) ([]domain.AuditBucket, error)
}
