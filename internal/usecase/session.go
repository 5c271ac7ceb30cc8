package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrSessionNotFound indicates no session exists for the identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked indicates the session was revoked ahead of use.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired indicates the inactivity window elapsed.
	ErrSessionExpired = errors.New("session expired")
)

// SessionService manages login sessions and their sliding inactivity window.
type SessionService struct {
	cfg      *config.AppConfig
	sessions port.SessionRepository
	tokens   port.TokenRepository
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cfg *config.AppConfig, sessions port.SessionRepository, tokens port.TokenRepository, events port.EventPublisher, logger *zap.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		sessions: sessions,
		tokens:   tokens,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Create opens a session bound to the refresh token issued alongside it.
func (s *SessionService) Create(ctx context.Context, identityID string, refreshTokenID *string, device DeviceInfo) (*domain.Session, error) {
	now := s.now()
	session := domain.Session{
		ID:             uuid.NewString(),
		IdentityID:     identityID,
		RefreshTokenID: refreshTokenID,
		DeviceID:       device.DeviceID,
		OriginFirst:    device.Origin,
		OriginLast:     device.Origin,
		UserAgent:      device.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.Session.InactivityTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &session, nil
}

// Validate resolves a session and rejects revoked or expired ones.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.ExpiresAt.After(s.now()) {
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Touch records activity on a session and slides the inactivity window
// forward. The expiry never moves backwards; concurrent touches are
// last-write-wins on the metadata.
func (s *SessionService) Touch(ctx context.Context, sessionID string, device DeviceInfo) error {
	session, err := s.Validate(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Touch(s.now(), s.cfg.Session.InactivityTTL, device.Origin, device.UserAgent)

	if err := s.sessions.Touch(ctx, sessionID, session.ExpiresAt, device.Origin, device.UserAgent); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke invalidates one session. Revoking a revoked session is a no-op.
func (s *SessionService) Revoke(ctx context.Context, sessionID, reason string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil
	}

	now := s.now()
	if err := s.sessions.Revoke(ctx, sessionID, reason, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.publishRevoked(ctx, session.IdentityID, sessionID, reason, now)
	return nil
}

// RevokeAllForIdentity invalidates every active session of the identity.
func (s *SessionService) RevokeAllForIdentity(ctx context.Context, identityID, reason string) (int, error) {
	now := s.now()
	count, err := s.sessions.RevokeAllForIdentity(ctx, identityID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	if count > 0 {
		s.publishRevoked(ctx, identityID, "", reason, now)
	}
	return count, nil
}

// BindRefreshToken links the session to the refresh token issued with it.
func (s *SessionService) BindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error {
	if err := s.sessions.BindRefreshToken(ctx, sessionID, refreshTokenID); err != nil {
		return fmt.Errorf("bind refresh token: %w", err)
	}
	return nil
}

// ListActive returns the identity's live sessions for device management UIs.
func (s *SessionService) ListActive(ctx context.Context, identityID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListActiveByIdentity(ctx, identityID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, identityID, sessionID, reason string, at time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
		IdentityID: identityID,
		SessionID:  sessionID,
		Reason:     reason,
		RevokedAt:  at,
	})
	if err != nil {
		s.logger.Warn("publish session revoked event", zap.Error(err))
	}
}
