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
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords.
	// Callers must not be able to distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates a lockout window is in effect.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive indicates the account is disabled or deleted.
	ErrAccountInactive = errors.New("account is not active")
	// ErrMFARequired indicates the password was accepted and a second
	// factor must now be presented.
	ErrMFARequired = errors.New("mfa required")
	// ErrIdentityNotFound indicates no identity exists for the identifier.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// LoginInput carries one credential presentation.
type LoginInput struct {
	Email      string
	Password   string
	MFACode    string
	BackupCode string
	RememberMe bool
	Device     DeviceInfo
}

// LoginResult is the issued credential bundle, or the MFA gate marker when
// the password stage passed but a second factor is outstanding.
type LoginResult struct {
	MFARequired     bool
	MFAMethod       domain.MFAMethod
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	RememberMeToken string
	Session         *domain.Session
	Identity        *domain.Identity
}

// AuthService orchestrates credential login end to end: rate limiting,
// password verification, lockout bookkeeping, the MFA gate, and credential
// issuance, with every outcome reaching the audit trail.
type AuthService struct {
	cfg        *config.AppConfig
	identities port.IdentityRepository
	guard      *RateLimitGuard
	tokens     *TokenService
	sessions   *SessionService
	mfa        *MFAService
	rbac       *RBACService
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	audit      *AuditService
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	identities port.IdentityRepository,
	guard *RateLimitGuard,
	tokens *TokenService,
	sessions *SessionService,
	mfa *MFAService,
	rbac *RBACService,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	audit *AuditService,
	events port.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:        cfg,
		identities: identities,
		guard:      guard,
		tokens:     tokens,
		sessions:   sessions,
		mfa:        mfa,
		rbac:       rbac,
		hasher:     hasher,
		policy:     policy,
		audit:      audit,
		events:     events,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates a local-credential identity. The password must satisfy
// the strength policy; the email must be unused.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if err := s.policy.Validate(password, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	identity := domain.Identity{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       &hash,
		Status:             domain.IdentityStatusActive,
		IsActive:           true,
		RegisteredAt:       now,
		LastPasswordChange: now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.publishRegistered(ctx, identity)
	s.audit.Log(ctx, domain.AuditEvent{
		ActorID:  &identity.ID,
		Category: domain.AuditCategoryAuthentication,
		Severity: domain.AuditSeverityInfo,
		Action:   "register",
		Result:   domain.AuditResultSuccess,
	})

	return &identity, nil
}

// Login runs the credential flow. When MFA is enabled for the account and no
// second factor accompanies the request, the password stage alone does not
// issue credentials: the result flags the outstanding factor and, for
// delivery-based methods, a challenge is started.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := domain.NormalizeEmail(input.Email)

	if err := s.guard.Check(ctx, email, input.Device.Origin); err != nil {
		s.audit.LogSecurityIncident(ctx, nil, "login_rate_limited", domain.AuditSeverityWarning, input.Device,
			map[string]any{"email": logger.MaskEmail(email)})
		return nil, err
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.guard.RegisterFailure(ctx, email, nil, input.Device)
			s.audit.LogLogin(ctx, nil, domain.AuditResultFailure, input.Device,
				map[string]any{"email": logger.MaskEmail(email), "reason": "unknown account"})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	now := s.now()
	if identity.IsLocked(now) {
		s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultDenied, input.Device,
			map[string]any{"reason": "account locked"})
		return nil, ErrAccountLocked
	}
	if !identity.CanAuthenticate(now) {
		s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultDenied, input.Device,
			map[string]any{"reason": "account inactive"})
		return nil, ErrAccountInactive
	}
	if !identity.HasPassword() {
		s.registerFailedPassword(ctx, identity, input.Device)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(input.Password, *identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.registerFailedPassword(ctx, identity, input.Device)
		return nil, ErrInvalidCredentials
	}

	if identity.MFAEnabled {
		result, err := s.passMFAGate(ctx, identity, input)
		if err != nil || result != nil {
			return result, err
		}
	}

	return s.finishLogin(ctx, identity, input)
}

// passMFAGate validates the second factor. A nil, nil return means the gate
// passed and login may complete.
func (s *AuthService) passMFAGate(ctx context.Context, identity *domain.Identity, input LoginInput) (*LoginResult, error) {
	enrolled, method, err := s.mfa.HasVerifiedFactor(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("check mfa factors: %w", err)
	}
	if !enrolled {
		// Flag out of sync with enrollments; let the login through and
		// surface the inconsistency.
		s.logger.Warn("mfa enabled without verified factor", zap.String("identity_id", identity.ID))
		return nil, nil
	}

	if input.BackupCode != "" {
		if err := s.mfa.VerifyBackupCode(ctx, identity.ID, input.BackupCode); err != nil {
			s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultFailure, input.Device,
				map[string]any{"reason": "backup code rejected"})
			return nil, err
		}
		return nil, nil
	}

	if input.MFACode == "" {
		if method != domain.MFAMethodTOTP {
			if err := s.mfa.StartChallenge(ctx, identity.ID, method); err != nil {
				return nil, err
			}
		}
		return &LoginResult{MFARequired: true, MFAMethod: method}, ErrMFARequired
	}

	switch method {
	case domain.MFAMethodTOTP:
		err = s.mfa.VerifyTOTP(ctx, identity.ID, input.MFACode)
	default:
		err = s.mfa.VerifyChallenge(ctx, identity.ID, method, input.MFACode)
	}
	if err != nil {
		s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultFailure, input.Device,
			map[string]any{"reason": "mfa code rejected", "method": string(method)})
		return nil, err
	}

	return nil, nil
}

func (s *AuthService) finishLogin(ctx context.Context, identity *domain.Identity, input LoginInput) (*LoginResult, error) {
	now := s.now()

	rawRefresh, refreshToken, err := s.tokens.IssueRefreshToken(ctx, identity.ID, nil, input.Device)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, identity.ID, &refreshToken.ID, input.Device)
	if err != nil {
		return nil, err
	}

	roles, err := s.rbac.RoleNames(ctx, identity.ID, nil)
	if err != nil {
		return nil, err
	}

	access, claims, err := s.tokens.IssueAccessToken(identity.ID, session.ID, roles)
	if err != nil {
		return nil, err
	}

	var rawRemember string
	if input.RememberMe {
		rawRemember, _, err = s.tokens.IssueRememberMeToken(ctx, identity.ID, input.Device)
		if err != nil {
			s.logger.Warn("issue remember-me token", zap.Error(err))
			rawRemember = ""
		}
	}

	if err := s.identities.UpdateLoginState(ctx, identity.ID, 0, nil, &now); err != nil {
		s.logger.Warn("reset login state", zap.String("identity_id", identity.ID), zap.Error(err))
	}
	s.guard.RegisterSuccess(ctx, identity.Email, &identity.ID, input.Device)
	s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultSuccess, input.Device, nil)

	identity.FailedAttempts = 0
	identity.LockedUntil = nil
	identity.LastLogin = &now

	return &LoginResult{
		AccessToken:     access,
		AccessExpiresAt: claims.ExpiresAt.Time,
		RefreshToken:    rawRefresh,
		RememberMeToken: rawRemember,
		Session:         session,
		Identity:        identity,
	}, nil
}

// registerFailedPassword advances the per-account failure counter and arms
// the lockout window when the threshold is reached.
func (s *AuthService) registerFailedPassword(ctx context.Context, identity *domain.Identity, device DeviceInfo) {
	failed := identity.FailedAttempts + 1

	var lockedUntil *time.Time
	if failed >= s.cfg.RateLimit.MaxAttempts {
		until := s.now().Add(s.cfg.RateLimit.LockoutPeriod)
		lockedUntil = &until
	}

	if err := s.identities.UpdateLoginState(ctx, identity.ID, failed, lockedUntil, identity.LastLogin); err != nil {
		s.logger.Warn("update login state", zap.String("identity_id", identity.ID), zap.Error(err))
	}

	s.guard.RegisterFailure(ctx, identity.Email, &identity.ID, device)
	s.audit.LogLogin(ctx, &identity.ID, domain.AuditResultFailure, device,
		map[string]any{"reason": "password rejected", "failed_attempts": failed})
}

// Refresh rotates a refresh token and mints a fresh access token. The
// session tied to the presented token slides its inactivity window.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, device DeviceInfo) (*LoginResult, error) {
	rawReplacement, token, err := s.tokens.RotateRefreshToken(ctx, rawRefresh, device)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.GetByID(ctx, token.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.CanAuthenticate(s.now()) {
		return nil, ErrAccountInactive
	}

	sessionID := ""
	if token.SessionID != nil {
		sessionID = *token.SessionID
		if err := s.sessions.Touch(ctx, sessionID, device); err != nil {
			switch {
			case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionNotFound):
				return nil, err
			default:
				// The rotation already succeeded; losing the slide is better
				// than losing the replacement token.
				s.logger.Warn("touch session", zap.String("session_id", sessionID), zap.Error(err))
			}
		}
		if err := s.sessions.BindRefreshToken(ctx, sessionID, token.ID); err != nil {
			s.logger.Warn("rebind session refresh token", zap.Error(err))
		}
	}

	roles, err := s.rbac.RoleNames(ctx, identity.ID, nil)
	if err != nil {
		return nil, err
	}

	access, claims, err := s.tokens.IssueAccessToken(identity.ID, sessionID, roles)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:     access,
		AccessExpiresAt: claims.ExpiresAt.Time,
		RefreshToken:    rawReplacement,
		Identity:        identity,
	}, nil
}

// Logout revokes the presented refresh token and its session.
func (s *AuthService) Logout(ctx context.Context, sessionID, rawRefresh string) error {
	if rawRefresh != "" {
		if err := s.tokens.RevokeRefreshToken(ctx, rawRefresh); err != nil && !errors.Is(err, ErrInvalidToken) {
			return err
		}
	}
	if sessionID != "" {
		if err := s.sessions.Revoke(ctx, sessionID, "logout"); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// LogoutEverywhere revokes every session and opaque token of the identity.
func (s *AuthService) LogoutEverywhere(ctx context.Context, identityID, reason string) error {
	if _, err := s.tokens.RevokeAllForIdentity(ctx, identityID); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAllForIdentity(ctx, identityID, reason); err != nil {
		return err
	}

	s.audit.Log(ctx, domain.AuditEvent{
		ActorID:  &identityID,
		Category: domain.AuditCategorySecurity,
		Severity: domain.AuditSeverityInfo,
		Action:   "logout_everywhere",
		Result:   domain.AuditResultSuccess,
		NewValue: map[string]any{"reason": reason},
	})
	return nil
}

func (s *AuthService) publishRegistered(ctx context.Context, identity domain.Identity) {
	if s.events == nil {
		return
	}
	err := s.events.PublishIdentityRegistered(ctx, domain.IdentityRegisteredEvent{
		IdentityID:   identity.ID,
		Email:        identity.Email,
		RegisteredAt: identity.RegisteredAt,
	})
	if err != nil {
		s.logger.Warn("publish identity registered event", zap.Error(err))
	}
}
