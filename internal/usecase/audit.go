package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
)

// AuditService records security-relevant events into the append-only trail.
// Writes are fire-and-forget: a failed append is logged and never propagates
// into the audited operation. Queries surface their errors normally.
type AuditService struct {
	audits port.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(audits port.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		audits: audits,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuditService) WithClock(clock func() time.Time) *AuditService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Log appends one event, filling in the identifier and timestamp.
func (s *AuditService) Log(ctx context.Context, event domain.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	if err := s.audits.Append(ctx, event); err != nil {
		s.logger.Error("append audit event",
			zap.String("category", string(event.Category)),
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

// LogLogin records an authentication attempt outcome.
func (s *AuditService) LogLogin(ctx context.Context, actorID *string, result domain.AuditResult, device DeviceInfo, detail map[string]any) {
	severity := domain.AuditSeverityInfo
	if result != domain.AuditResultSuccess {
		severity = domain.AuditSeverityWarning
	}
	s.Log(ctx, domain.AuditEvent{
		ActorID:   actorID,
		Category:  domain.AuditCategoryAuthentication,
		Severity:  severity,
		Action:    "login",
		Result:    result,
		NewValue:  detail,
		Origin:    device.Origin,
		UserAgent: device.UserAgent,
	})
}

// LogPermissionDenied records an authorization denial with its reason.
func (s *AuditService) LogPermissionDenied(ctx context.Context, actorID string, resource, action, reason string) {
	resourceType := resource
	s.Log(ctx, domain.AuditEvent{
		ActorID:      &actorID,
		Category:     domain.AuditCategoryAuthorization,
		Severity:     domain.AuditSeverityWarning,
		ResourceType: &resourceType,
		Action:       action,
		Result:       domain.AuditResultDenied,
		NewValue:     map[string]any{"reason": reason},
	})
}

// LogDataChange records a mutation with before and after snapshots.
func (s *AuditService) LogDataChange(ctx context.Context, actorID string, resourceType, resourceID, action string, oldValue, newValue map[string]any) {
	s.Log(ctx, domain.AuditEvent{
		ActorID:      &actorID,
		Category:     domain.AuditCategoryDataAccess,
		Severity:     domain.AuditSeverityInfo,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Action:       action,
		Result:       domain.AuditResultSuccess,
		OldValue:     oldValue,
		NewValue:     newValue,
	})
}

// LogSecurityIncident records a security-relevant anomaly.
func (s *AuditService) LogSecurityIncident(ctx context.Context, actorID *string, action string, severity domain.AuditSeverity, device DeviceInfo, detail map[string]any) {
	s.Log(ctx, domain.AuditEvent{
		ActorID:   actorID,
		Category:  domain.AuditCategorySecurity,
		Severity:  severity,
		Action:    action,
		Result:    domain.AuditResultFailure,
		NewValue:  detail,
		Origin:    device.Origin,
		UserAgent: device.UserAgent,
	})
}

// LogAdminAction records a privileged administrative operation.
func (s *AuditService) LogAdminAction(ctx context.Context, actorID string, action string, resourceType, resourceID string, detail map[string]any) {
	s.Log(ctx, domain.AuditEvent{
		ActorID:      &actorID,
		Category:     domain.AuditCategoryAdmin,
		Severity:     domain.AuditSeverityInfo,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Action:       action,
		Result:       domain.AuditResultSuccess,
		NewValue:     detail,
	})
}

// Query returns audit events matching the filter, newest first.
func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	events, err := s.audits.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return events, nil
}

// ComplianceReport aggregates event counts by category, severity, and result
// over a date range.
func (s *AuditService) ComplianceReport(ctx context.Context, from, to time.Time) (*domain.ComplianceReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report range is empty")
	}

	buckets, err := s.audits.Aggregate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate audit events: %w", err)
	}

	report := &domain.ComplianceReport{From: from, To: to, Buckets: buckets}
	for _, bucket := range buckets {
		report.Total += bucket.Count
	}
	return report, nil
}
