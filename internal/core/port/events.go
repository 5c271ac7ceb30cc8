package port

import (
	"context"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishInvitationRedeemed(ctx context.Context, event domain.InvitationRedeemedEvent) error
	PublishRolesChanged(ctx context.Context, event domain.RolesChangedEvent) error
}
