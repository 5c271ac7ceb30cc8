package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrInvalidToken indicates the presented token does not exist, is
	// malformed, or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token elapsed its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates the token was explicitly revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRotationIncomplete indicates the old refresh token was revoked but
	// issuing its replacement failed. The client must re-authenticate.
	ErrRotationIncomplete = errors.New("token rotation incomplete")
)

const opaqueTokenBytes = 32

// DeviceInfo carries optional request metadata bound to issued credentials.
type DeviceInfo struct {
	DeviceID  *string
	Origin    *string
	UserAgent *string
}

// TokenService issues, verifies, rotates, and revokes credentials: stateless
// RS256 access tokens and store-backed opaque refresh and remember-me tokens.
type TokenService struct {
	cfg    *config.AppConfig
	tokens port.TokenRepository
	jwt    *security.JWTManager
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg *config.AppConfig, tokens port.TokenRepository, jwt *security.JWTManager) *TokenService {
	return &TokenService{
		cfg:    cfg,
		tokens: tokens,
		jwt:    jwt,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IssueAccessToken signs a short-lived access token carrying the identity,
// session binding, and role names.
func (s *TokenService) IssueAccessToken(identityID, sessionID string, roles []string) (string, *security.AccessTokenClaims, error) {
	signed, claims, err := s.jwt.Sign(security.AccessTokenOptions{
		IdentityID: identityID,
		SessionID:  sessionID,
		Roles:      roles,
		Issuer:     s.cfg.App.Name,
		TTL:        s.cfg.JWT.AccessTokenTTL,
		IssuedAt:   s.now(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// VerifyAccessToken validates an access token statelessly. Any verification
// failure denies; claims are returned only on full success.
func (s *TokenService) VerifyAccessToken(token string) (*security.AccessTokenClaims, error) {
	claims, err := s.jwt.Parse(token, s.cfg.App.Name, s.now())
	if err != nil {
		if errors.Is(err, security.ErrAccessTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefreshToken mints an opaque refresh token for the identity. The raw
// value is returned once; only its hash is stored.
func (s *TokenService) IssueRefreshToken(ctx context.Context, identityID string, sessionID *string, device DeviceInfo) (string, *domain.OpaqueToken, error) {
	return s.issueOpaque(ctx, identityID, sessionID, device, domain.TokenKindRefresh, s.cfg.JWT.RefreshTokenTTL)
}

// IssuePasswordResetToken mints a short-lived single-use reset token.
func (s *TokenService) IssuePasswordResetToken(ctx context.Context, identityID string) (string, *domain.OpaqueToken, error) {
	return s.issueOpaque(ctx, identityID, nil, DeviceInfo{}, domain.TokenKindPasswordReset, s.cfg.JWT.PasswordResetTTL)
}

// VerifyPasswordResetToken resolves a presented reset token.
func (s *TokenService) VerifyPasswordResetToken(ctx context.Context, raw string) (*domain.OpaqueToken, error) {
	return s.verifyOpaque(ctx, domain.TokenKindPasswordReset, raw)
}

// ConsumeToken revokes a single-use token after a successful presentation.
func (s *TokenService) ConsumeToken(ctx context.Context, tokenID string) error {
	if err := s.tokens.Revoke(ctx, tokenID, s.now()); err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return nil
}

// IssueRememberMeToken mints a long-lived remember-me token.
func (s *TokenService) IssueRememberMeToken(ctx context.Context, identityID string, device DeviceInfo) (string, *domain.OpaqueToken, error) {
	return s.issueOpaque(ctx, identityID, nil, device, domain.TokenKindRememberMe, s.cfg.JWT.RememberMeTTL)
}

func (s *TokenService) issueOpaque(ctx context.Context, identityID string, sessionID *string, device DeviceInfo, kind domain.TokenKind, ttl time.Duration) (string, *domain.OpaqueToken, error) {
	raw, err := security.GenerateSecureToken(opaqueTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate %s token: %w", kind, err)
	}

	now := s.now()
	token := domain.OpaqueToken{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Kind:       kind,
		TokenHash:  security.HashToken(raw),
		SessionID:  sessionID,
		DeviceID:   device.DeviceID,
		Origin:     device.Origin,
		UserAgent:  device.UserAgent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("persist %s token: %w", kind, err)
	}

	return raw, &token, nil
}

// VerifyRefreshToken resolves a presented refresh token. Store failures deny.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, raw string) (*domain.OpaqueToken, error) {
	return s.verifyOpaque(ctx, domain.TokenKindRefresh, raw)
}

// VerifyRememberMeToken resolves a presented remember-me token.
func (s *TokenService) VerifyRememberMeToken(ctx context.Context, raw string) (*domain.OpaqueToken, error) {
	return s.verifyOpaque(ctx, domain.TokenKindRememberMe, raw)
}

func (s *TokenService) verifyOpaque(ctx context.Context, kind domain.TokenKind, raw string) (*domain.OpaqueToken, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	token, err := s.tokens.GetByHash(ctx, kind, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup %s token: %w", kind, err)
	}

	if token.IsRevoked() {
		return nil, ErrTokenRevoked
	}
	if token.IsExpired(s.now()) {
		return nil, ErrTokenExpired
	}

	return token, nil
}

// RotateRefreshToken atomically replaces a refresh token: the old token is
// revoked first, then a successor is issued bound to the same session. When
// issuance fails after revocation the rotation is reported incomplete rather
// than leaving the old token alive.
func (s *TokenService) RotateRefreshToken(ctx context.Context, raw string, device DeviceInfo) (string, *domain.OpaqueToken, error) {
	current, err := s.VerifyRefreshToken(ctx, raw)
	if err != nil {
		return "", nil, err
	}

	if err := s.tokens.Revoke(ctx, current.ID, s.now()); err != nil {
		return "", nil, fmt.Errorf("revoke rotated token: %w", err)
	}

	replacement, token, err := s.issueOpaque(ctx, current.IdentityID, current.SessionID, device, domain.TokenKindRefresh, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrRotationIncomplete, err)
	}

	return replacement, token, nil
}

// RevokeRefreshToken revokes one refresh token. Revoking an already revoked
// token is a no-op success.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, raw string) error {
	token, err := s.tokens.GetByHash(ctx, domain.TokenKindRefresh, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	if token.IsRevoked() {
		return nil
	}

	if err := s.tokens.Revoke(ctx, token.ID, s.now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForIdentity revokes every live opaque token of both kinds for the
// identity. Returns the total number of tokens revoked.
func (s *TokenService) RevokeAllForIdentity(ctx context.Context, identityID string) (int, error) {
	now := s.now()

	refresh, err := s.tokens.RevokeAllForIdentity(ctx, identityID, domain.TokenKindRefresh, now)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	remember, err := s.tokens.RevokeAllForIdentity(ctx, identityID, domain.TokenKindRememberMe, now)
	if err != nil {
		return refresh, fmt.Errorf("revoke remember-me tokens: %w", err)
	}

	return refresh + remember, nil
}
