package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when the
// broker is disabled and in development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, identityID string, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("identity_id", identityID),
		zap.Time("timestamp", at.UTC()),
	)
}

func (p *StubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	p.logEvent("auth.identity.registered", event.IdentityID, event.RegisteredAt)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("auth.password.changed", event.IdentityID, event.ChangedAt)
	return nil
}

func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent("auth.session.revoked", event.IdentityID, event.RevokedAt)
	return nil
}

func (p *StubPublisher) PublishInvitationRedeemed(_ context.Context, event domain.InvitationRedeemedEvent) error {
	p.logEvent("auth.invitation.redeemed", event.IdentityID, event.RedeemedAt)
	return nil
}

func (p *StubPublisher) PublishRolesChanged(_ context.Context, event domain.RolesChangedEvent) error {
	p.logEvent("auth.roles.changed", event.IdentityID, event.ChangedAt)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
