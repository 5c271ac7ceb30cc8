package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
)

type passwordFixture struct {
	svc        *PasswordService
	identities *fakeIdentityRepo
	tokens     *fakeTokenRepo
	sessions   *fakeSessionRepo
	tokenSvc   *TokenService
	sessionSvc *SessionService
	events     *capturedEvents
	emails     *capturedEmails
	clock      *time.Time
}

func newPasswordFixture(t *testing.T, at time.Time) *passwordFixture {
	t.Helper()

	cfg := testConfig()
	clock := at
	now := func() time.Time { return clock }

	provider, err := security.NewEphemeralKeyProvider("test-key")
	if err != nil {
		t.Fatalf("new key provider: %v", err)
	}
	manager, err := security.NewJWTManager(provider)
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}

	identities := newFakeIdentityRepo()
	tokens := newFakeTokenRepo()
	sessions := newFakeSessionRepo()
	events := &capturedEvents{}
	emails := &capturedEmails{}

	log := testLogger()
	tokenSvc := NewTokenService(cfg, tokens, manager).WithClock(now)
	sessionSvc := NewSessionService(cfg, sessions, tokens, events, log).WithClock(now)
	auditSvc := NewAuditService(&fakeAuditRepo{}, log).WithClock(now)

	svc := NewPasswordService(cfg, identities, tokenSvc, sessionSvc, stubHasher{}, stubPolicy{}, emails, events, auditSvc, log)

	return &passwordFixture{
		svc:        svc,
		identities: identities,
		tokens:     tokens,
		sessions:   sessions,
		tokenSvc:   tokenSvc,
		sessionSvc: sessionSvc,
		events:     events,
		emails:     emails,
		clock:      &clock,
	}
}

func (f *passwordFixture) seedIdentity(email, password string) *domain.Identity {
	hash := "hashed:" + password
	return f.identities.add(domain.Identity{
		ID:           "identity-" + email,
		Email:        domain.NormalizeEmail(email),
		PasswordHash: &hash,
		Status:       domain.IdentityStatusActive,
		IsActive:     true,
	})
}

func resetToken(t *testing.T, emails *capturedEmails) string {
	t.Helper()
	if len(emails.messages) == 0 {
		t.Fatal("no reset email captured")
	}
	body := emails.messages[len(emails.messages)-1].TextBody
	marker := "token="
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatalf("no reset link in email body: %q", body)
	}
	token := body[idx+len(marker):]
	if end := strings.IndexAny(token, " \n"); end >= 0 {
		token = token[:end]
	}
	return token
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPasswordFixture(t, now)
	identity := f.seedIdentity("user@example.com", "old password")

	// Outstanding credentials to be invalidated by the change.
	session, err := f.sessionSvc.Create(ctx, identity.ID, nil, DeviceInfo{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	rawRefresh, _, err := f.tokenSvc.IssueRefreshToken(ctx, identity.ID, nil, DeviceInfo{})
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if err := f.svc.Change(ctx, identity.ID, "old password", "new password"); err != nil {
		t.Fatalf("change: %v", err)
	}

	stored, _ := f.identities.GetByID(ctx, identity.ID)
	if stored.PasswordHash == nil || *stored.PasswordHash != "hashed:new password" {
		t.Fatal("password hash must be replaced")
	}

	// Every session and token dies with the old credential.
	if _, err := f.sessionSvc.Validate(ctx, session.ID); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("session error = %v, want ErrSessionRevoked", err)
	}
	if _, err := f.tokenSvc.VerifyRefreshToken(ctx, rawRefresh); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh error = %v, want ErrTokenRevoked", err)
	}

	if len(f.events.passwords) != 1 || f.events.passwords[0].ViaReset {
		t.Fatalf("password events = %+v", f.events.passwords)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	ctx := context.Background()
	f := newPasswordFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	identity := f.seedIdentity("user@example.com", "old password")

	if err := f.svc.Change(ctx, identity.ID, "not the password", "new password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
	if err := f.svc.Change(ctx, "no-such-identity", "x", "y"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("unknown identity error = %v, want ErrIdentityNotFound", err)
	}
}

func TestChangePasswordPolicyRejection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPasswordFixture(t, now)
	identity := f.seedIdentity("user@example.com", "old password")

	policyErr := errors.New("password too weak")
	f.svc.policy = stubPolicy{err: policyErr}

	if err := f.svc.Change(ctx, identity.ID, "old password", "weak"); !errors.Is(err, policyErr) {
		t.Fatalf("error = %v, want policy rejection", err)
	}
	stored, _ := f.identities.GetByID(ctx, identity.ID)
	if *stored.PasswordHash != "hashed:old password" {
		t.Fatal("rejected change must leave the password untouched")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPasswordFixture(t, now)
	identity := f.seedIdentity("user@example.com", "old password")

	if err := f.svc.RequestReset(ctx, "User@Example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	raw := resetToken(t, f.emails)

	if err := f.svc.Reset(ctx, raw, "brand new password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	stored, _ := f.identities.GetByID(ctx, identity.ID)
	if *stored.PasswordHash != "hashed:brand new password" {
		t.Fatal("reset must apply the new password")
	}
	if len(f.events.passwords) != 1 || !f.events.passwords[0].ViaReset {
		t.Fatalf("password events = %+v", f.events.passwords)
	}

	// The token is single use.
	if err := f.svc.Reset(ctx, raw, "another password"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("reuse error = %v, want ErrTokenRevoked", err)
	}
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newPasswordFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	if err := f.svc.RequestReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if len(f.emails.messages) != 0 {
		t.Fatal("unknown email must not trigger an email")
	}
}

func TestPasswordResetTokenExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPasswordFixture(t, now)
	f.seedIdentity("user@example.com", "old password")

	if err := f.svc.RequestReset(ctx, "user@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	raw := resetToken(t, f.emails)

	*f.clock = now.Add(31 * time.Minute)
	if err := f.svc.Reset(ctx, raw, "new password"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}
}
