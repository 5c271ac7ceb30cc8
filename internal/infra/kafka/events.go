package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	IdentityID string    `json:"identity_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Payload    any       `json:"payload"`
	Service    string    `json:"service,omitempty"`
}

func (p *EventPublisher) publish(_ context.Context, eventType, identityID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	envelope := eventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		IdentityID: identityID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Payload:    payload,
		Service:    p.appCfg.Name,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(identityID),
		Value: sarama.ByteEncoder(value),
	}

	return nil
}

// PublishIdentityRegistered publishes auth.identity.registered events.
func (p *EventPublisher) PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error {
	return p.publish(ctx, "auth.identity.registered", event.IdentityID, event.RegisteredAt, map[string]any{
		"identity_id":   event.IdentityID,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
	})
}

// PublishPasswordChanged publishes auth.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	return p.publish(ctx, "auth.password.changed", event.IdentityID, event.ChangedAt, map[string]any{
		"identity_id": event.IdentityID,
		"changed_at":  event.ChangedAt,
		"via_reset":   event.ViaReset,
	})
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	return p.publish(ctx, "auth.session.revoked", event.IdentityID, event.RevokedAt, map[string]any{
		"identity_id": event.IdentityID,
		"session_id":  event.SessionID,
		"reason":      event.Reason,
		"revoked_at":  event.RevokedAt,
	})
}

// PublishInvitationRedeemed publishes auth.invitation.redeemed events.
func (p *EventPublisher) PublishInvitationRedeemed(ctx context.Context, event domain.InvitationRedeemedEvent) error {
	return p.publish(ctx, "auth.invitation.redeemed", event.IdentityID, event.RedeemedAt, map[string]any{
		"invitation_id":   event.InvitationID,
		"organization_id": event.OrganizationID,
		"identity_id":     event.IdentityID,
		"role_name":       event.RoleName,
		"redeemed_at":     event.RedeemedAt,
	})
}

// PublishRolesChanged publishes auth.roles.changed events.
func (p *EventPublisher) PublishRolesChanged(ctx context.Context, event domain.RolesChangedEvent) error {
	return p.publish(ctx, "auth.roles.changed", event.IdentityID, event.ChangedAt, map[string]any{
		"identity_id":     event.IdentityID,
		"role_name":       event.RoleName,
		"organization_id": event.OrganizationID,
		"assigned":        event.Assigned,
		"changed_at":      event.ChangedAt,
	})
}

var _ port.EventPublisher = (*EventPublisher)(nil)
