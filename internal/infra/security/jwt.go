package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

const (
	// TokenTypeAccess labels self-contained access tokens in the typ claim.
	TokenTypeAccess = "access"

	defaultAccessTokenTTL = 15 * time.Minute
)

var (
	// ErrAccessTokenExpired indicates the token elapsed its exp claim.
	ErrAccessTokenExpired = errors.New("jwt: access token expired")
	// ErrAccessTokenInvalid indicates the token is malformed, unsigned by a
	// known key, or carries the wrong type claim.
	ErrAccessTokenInvalid = errors.New("jwt: access token invalid")
)

// AccessTokenClaims augments registered claims with the authenticated
// principal and session context.
type AccessTokenClaims struct {
	IdentityID string   `json:"uid"`
	SessionID  string   `json:"sid,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	TokenType  string   `json:"typ"`
	jwt.RegisteredClaims
}

// AccessTokenOptions configures creation of access token claims.
type AccessTokenOptions struct {
	IdentityID string
	SessionID  string
	Roles      []string
	Issuer     string
	Audience   []string
	TTL        time.Duration
	IssuedAt   time.Time
}

// JWTManager signs and verifies RS256 access tokens via a KeyProvider and
// publishes the JWKS for external verifiers.
type JWTManager struct {
	provider KeyProvider
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) (*JWTManager, error) {
	if provider == nil {
		return nil, fmt.Errorf("jwt: key provider is required")
	}
	return &JWTManager{provider: provider}, nil
}

// Sign builds and signs access token claims.
func (m *JWTManager) Sign(opts AccessTokenOptions) (string, *AccessTokenClaims, error) {
	identityID := strings.TrimSpace(opts.IdentityID)
	if identityID == "" {
		return "", nil, fmt.Errorf("jwt: identity id is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return "", nil, fmt.Errorf("jwt: issuer is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	claims := &AccessTokenClaims{
		IdentityID: identityID,
		SessionID:  strings.TrimSpace(opts.SessionID),
		Roles:      normalizeRoles(opts.Roles),
		TokenType:  TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    issuer,
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signingKey, err := m.provider.GetSigningKey()
	if err != nil {
		return "", nil, fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.provider.GetSigningKID()

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, claims, nil
}

// Parse validates the signature, expiry, issuer, and type claim of an access
// token. Verification is stateless; no store lookup happens here.
func (m *JWTManager) Parse(token string, issuer string, at time.Time) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrAccessTokenInvalid
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}
		return m.provider.GetVerificationKey(kid)
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(func() time.Time { return at }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrAccessTokenInvalid
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, ErrAccessTokenInvalid
	}

	return claims, nil
}

// JWKS produces the JSON Web Key Set for the provider's signing key.
func (m *JWTManager) JWKS() ([]byte, error) {
	kid := m.provider.GetSigningKID()
	key, err := m.provider.GetVerificationKey(kid)
	if err != nil {
		return json.Marshal(map[string]any{"keys": []any{}})
	}

	payload := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	return json.Marshal(payload)
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, role := range input {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
