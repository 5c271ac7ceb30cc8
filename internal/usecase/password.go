package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

// PasswordService handles credential changes and the email reset flow. Every
// successful change globally invalidates the identity's sessions and tokens.
type PasswordService struct {
	cfg        *config.AppConfig
	identities port.IdentityRepository
	tokens     *TokenService
	sessions   *SessionService
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	email      port.EmailSender
	events     port.EventPublisher
	audit      *AuditService
	logger     *zap.Logger
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	cfg *config.AppConfig,
	identities port.IdentityRepository,
	tokens *TokenService,
	sessions *SessionService,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	email port.EmailSender,
	events port.EventPublisher,
	audit *AuditService,
	logger *zap.Logger,
) *PasswordService {
	return &PasswordService{
		cfg:        cfg,
		identities: identities,
		tokens:     tokens,
		sessions:   sessions,
		hasher:     hasher,
		policy:     policy,
		email:      email,
		events:     events,
		audit:      audit,
		logger:     logger,
	}
}

// Change replaces the password after verifying the current one.
func (s *PasswordService) Change(ctx context.Context, identityID, currentPassword, newPassword string) error {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.HasPassword() {
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(currentPassword, *identity.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	return s.applyNewPassword(ctx, identity, newPassword, false)
}

// RequestReset sends a reset link when the email maps to an account. The
// response is identical either way so accounts cannot be enumerated.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset for unknown email", zap.String("email", logger.MaskEmail(email)))
			return nil
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	raw, token, err := s.tokens.IssuePasswordResetToken(ctx, identity.ID)
	if err != nil {
		return err
	}

	s.sendResetEmail(ctx, identity.Email, raw)
	s.audit.Log(ctx, domain.AuditEvent{
		ActorID:  &identity.ID,
		Category: domain.AuditCategorySecurity,
		Severity: domain.AuditSeverityInfo,
		Action:   "password_reset_requested",
		Result:   domain.AuditResultSuccess,
		NewValue: map[string]any{"expires_at": token.ExpiresAt},
	})
	return nil
}

// Reset completes the email flow: the token is verified, consumed, and the
// new password applied with global invalidation.
func (s *PasswordService) Reset(ctx context.Context, rawToken, newPassword string) error {
	token, err := s.tokens.VerifyPasswordResetToken(ctx, rawToken)
	if err != nil {
		return err
	}

	identity, err := s.identities.GetByID(ctx, token.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	if err := s.applyNewPassword(ctx, identity, newPassword, true); err != nil {
		return err
	}

	if err := s.tokens.ConsumeToken(ctx, token.ID); err != nil {
		s.logger.Warn("consume reset token", zap.Error(err))
	}
	return nil
}

func (s *PasswordService) applyNewPassword(ctx context.Context, identity *domain.Identity, newPassword string, viaReset bool) error {
	if err := s.policy.Validate(newPassword, identity.Email); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.tokens.now()
	if err := s.identities.UpdatePassword(ctx, identity.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// A changed credential invalidates every outstanding session and token.
	if _, err := s.tokens.RevokeAllForIdentity(ctx, identity.ID); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAllForIdentity(ctx, identity.ID, "password_changed"); err != nil {
		return err
	}

	if s.events != nil {
		err := s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			IdentityID: identity.ID,
			ChangedAt:  now,
			ViaReset:   viaReset,
		})
		if err != nil {
			s.logger.Warn("publish password changed event", zap.Error(err))
		}
	}

	action := "password_changed"
	if viaReset {
		action = "password_reset"
	}
	s.audit.Log(ctx, domain.AuditEvent{
		ActorID:  &identity.ID,
		Category: domain.AuditCategorySecurity,
		Severity: domain.AuditSeverityInfo,
		Action:   action,
		Result:   domain.AuditResultSuccess,
	})
	return nil
}

func (s *PasswordService) sendResetEmail(ctx context.Context, to, rawToken string) {
	if s.email == nil {
		return
	}
	link := fmt.Sprintf("%s/password/reset?token=%s", s.cfg.App.BaseURL, rawToken)
	err := s.email.Send(ctx, port.EmailMessage{
		To:      to,
		Subject: "Reset your password",
		TextBody: fmt.Sprintf(
			"A password reset was requested for your account.\n\nReset it here: %s\n\nThe link expires in %d minutes. If you did not request this, ignore this email.",
			link, int(s.cfg.JWT.PasswordResetTTL.Minutes())),
	})
	if err != nil {
		s.logger.Warn("send reset email", zap.String("email", logger.MaskEmail(to)), zap.Error(err))
	}
}
