package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
)

type authFixture struct {
	svc        *AuthService
	mfaSvc     *MFAService
	cfg        *config.AppConfig
	identities *fakeIdentityRepo
	tokens     *fakeTokenRepo
	sessions   *fakeSessionRepo
	store      *fakeRateLimitStore
	mfaRepo    *fakeMFARepo
	challenges *fakeChallengeStore
	audit      *fakeAuditRepo
	events     *capturedEvents
	emails     *capturedEmails
	clock      *time.Time
}

func newAuthFixture(t *testing.T, at time.Time) *authFixture {
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
	store := newFakeRateLimitStore()
	mfaRepo := newFakeMFARepo()
	challenges := newFakeChallengeStore()
	auditRepo := &fakeAuditRepo{}
	events := &capturedEvents{}
	emails := &capturedEmails{}
	roles := newFakeRoleRepo()
	perms := newFakePermissionRepo()
	assignments := &fakeAssignmentRepo{}

	log := testLogger()
	auditSvc := NewAuditService(auditRepo, log).WithClock(now)
	tokenSvc := NewTokenService(cfg, tokens, manager).WithClock(now)
	sessionSvc := NewSessionService(cfg, sessions, tokens, events, log).WithClock(now)
	guard := NewRateLimitGuard(cfg.RateLimit, store, &fakeAttemptLedger{}, log).WithClock(now)
	rbacSvc := NewRBACService(roles, perms, assignments, events, log).WithClock(now)
	totp := security.NewTOTPManager(security.DefaultTOTPConfig("auth-test"))
	mfaSvc := NewMFAService(cfg.MFA, mfaRepo, challenges, identities, totp, emails, log).WithClock(now)

	svc := NewAuthService(cfg, identities, guard, tokenSvc, sessionSvc, mfaSvc, rbacSvc, stubHasher{}, stubPolicy{}, auditSvc, events, log).WithClock(now)

	return &authFixture{
		svc:        svc,
		mfaSvc:     mfaSvc,
		cfg:        cfg,
		identities: identities,
		tokens:     tokens,
		sessions:   sessions,
		store:      store,
		mfaRepo:    mfaRepo,
		challenges: challenges,
		audit:      auditRepo,
		events:     events,
		emails:     emails,
		clock:      &clock,
	}
}

func (f *authFixture) seedIdentity(email, password string) *domain.Identity {
	hash := "hashed:" + password
	return f.identities.add(domain.Identity{
		ID:           "identity-" + email,
		Email:        domain.NormalizeEmail(email),
		PasswordHash: &hash,
		Status:       domain.IdentityStatusActive,
		IsActive:     true,
		RegisteredAt: *f.clock,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)

	identity, err := f.svc.Register(ctx, "Anna@Example.com", "correct horse battery staple")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if identity.Email != "anna@example.com" {
		t.Fatalf("email not normalized: %q", identity.Email)
	}
	if len(f.events.registered) != 1 {
		t.Fatalf("registered events = %d, want 1", len(f.events.registered))
	}

	result, err := f.svc.Login(ctx, LoginInput{
		Email:    "anna@example.com",
		Password: "correct horse battery staple",
		Device:   DeviceInfo{Origin: strPtr("203.0.113.7")},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("login must issue access and refresh tokens")
	}
	if result.Session == nil {
		t.Fatal("login must open a session")
	}

	stored, err := f.sessions.GetByID(ctx, result.Session.ID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.RefreshTokenID == nil {
		t.Fatal("session must be bound to its refresh token")
	}
	if got := stored.ExpiresAt; !got.Equal(now.Add(f.cfg.Session.InactivityTTL)) {
		t.Fatalf("session expiry = %v, want %v", got, now.Add(f.cfg.Session.InactivityTTL))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	if _, err := f.svc.Register(ctx, "dup@example.com", "a strong enough password"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := f.svc.Register(ctx, "DUP@example.com", "a strong enough password"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate register error = %v, want ErrEmailTaken", err)
	}
}

func TestLoginUnknownAccountLooksLikeBadPassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.seedIdentity("known@example.com", "pw")

	_, unknownErr := f.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "pw"})
	_, wrongErr := f.svc.Login(ctx, LoginInput{Email: "known@example.com", Password: "wrong"})

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("errors differ: unknown=%v wrong=%v", unknownErr, wrongErr)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("victim@example.com", "secret")

	for i := 0; i < f.cfg.RateLimit.MaxAttempts; i++ {
		if _, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrRateLimited) {
			t.Fatalf("attempt %d error = %v", i, err)
		}
	}

	stored, _ := f.identities.GetByID(ctx, identity.ID)
	if stored.LockedUntil == nil {
		t.Fatal("lockout must arm after the configured number of failures")
	}
	if want := now.Add(f.cfg.RateLimit.LockoutPeriod); !stored.LockedUntil.Equal(want) {
		t.Fatalf("locked until %v, want %v", stored.LockedUntil, want)
	}

	if _, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"}); !errors.Is(err, ErrAccountLocked) && !errors.Is(err, ErrRateLimited) {
		t.Fatalf("locked login error = %v, want ErrAccountLocked or ErrRateLimited", err)
	}

	// The lockout expires on its own.
	*f.clock = now.Add(f.cfg.RateLimit.LockoutPeriod + f.cfg.RateLimit.WindowDuration + time.Minute)
	if _, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"}); err != nil {
		t.Fatalf("login after lockout expiry: %v", err)
	}
}

func TestLoginRateLimitedBySlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	f.seedIdentity("target@example.com", "secret")

	for i := 0; i < f.cfg.RateLimit.MaxAttempts; i++ {
		_ = f.store.RecordAttempt(ctx, emailKey("target@example.com"), now.Add(-time.Duration(i)*time.Second))
	}

	_, err := f.svc.Login(ctx, LoginInput{Email: "target@example.com", Password: "secret"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	limited, ok := AsRateLimited(err)
	if !ok {
		t.Fatal("rate limited error must carry a retry hint")
	}
	if limited.RetryAfter < f.cfg.RateLimit.LockoutPeriod {
		t.Fatalf("retry after = %v, want at least %v", limited.RetryAfter, f.cfg.RateLimit.LockoutPeriod)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	identity := f.seedIdentity("gone@example.com", "secret")
	_ = f.identities.UpdateStatus(ctx, identity.ID, domain.IdentityStatusDisabled)

	if _, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("error = %v, want ErrAccountInactive", err)
	}
}

func TestLoginMFAGateWithEmailChallenge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("mfa@example.com", "secret")
	_ = f.identities.SetMFAEnabled(ctx, identity.ID, true)
	f.mfaRepo.enrollments[enrollmentKey(identity.ID, domain.MFAMethodEmail)] = &domain.MFAEnrollment{
		ID:         "enrollment-1",
		IdentityID: identity.ID,
		Method:     domain.MFAMethodEmail,
		Address:    strPtr(identity.Email),
		IsVerified: true,
		IsPrimary:  true,
	}

	result, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("error = %v, want ErrMFARequired", err)
	}
	if result == nil || !result.MFARequired || result.MFAMethod != domain.MFAMethodEmail {
		t.Fatalf("unexpected gate result: %+v", result)
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("password stage alone must not issue credentials")
	}
	if len(f.emails.messages) != 1 {
		t.Fatalf("challenge emails = %d, want 1", len(f.emails.messages))
	}

	// Replace the random challenge with a known code and answer it.
	_ = f.challenges.Put(ctx, domain.MFAChallenge{
		ID:                "challenge-1",
		IdentityID:        identity.ID,
		Method:            domain.MFAMethodEmail,
		CodeHash:          security.HashToken("123456"),
		AttemptsRemaining: 3,
		CreatedAt:         now,
		ExpiresAt:         now.Add(5 * time.Minute),
	}, 5*time.Minute)

	result, err = f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret", MFACode: "123456"})
	if err != nil {
		t.Fatalf("login with code: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("completed MFA login must issue credentials")
	}

	// The challenge is single use.
	if _, err := f.challenges.Get(ctx, identity.ID, domain.MFAMethodEmail); err == nil {
		t.Fatal("challenge must be consumed after a successful answer")
	}
}

func TestLoginWithBackupCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("backup@example.com", "secret")
	_ = f.identities.SetMFAEnabled(ctx, identity.ID, true)
	f.mfaRepo.enrollments[enrollmentKey(identity.ID, domain.MFAMethodTOTP)] = &domain.MFAEnrollment{
		ID:         "enrollment-1",
		IdentityID: identity.ID,
		Method:     domain.MFAMethodTOTP,
		Secret:     strPtr("JBSWY3DPEHPK3PXP"),
		IsVerified: true,
		IsPrimary:  true,
	}
	_ = f.mfaRepo.ReplaceBackupCodes(ctx, identity.ID, []domain.BackupCode{{
		ID:         "code-1",
		IdentityID: identity.ID,
		CodeHash:   security.HashToken("abcd1234"),
	}})

	result, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret", BackupCode: "abcd-1234"})
	if err != nil {
		t.Fatalf("login with backup code: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("backup code login must issue credentials")
	}

	// The same code cannot be replayed.
	if _, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret", BackupCode: "abcd-1234"}); !errors.Is(err, ErrMFAChallengeFailed) {
		t.Fatalf("replayed backup code error = %v, want ErrMFAChallengeFailed", err)
	}
}

func TestRefreshRotatesAndSlidesSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("sliding@example.com", "secret")

	login, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	*f.clock = now.Add(20 * time.Minute)
	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken, DeviceInfo{Origin: strPtr("198.51.100.2")})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must rotate the opaque token")
	}

	session, err := f.sessions.GetByID(ctx, login.Session.ID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if want := now.Add(20 * time.Minute).Add(f.cfg.Session.InactivityTTL); !session.ExpiresAt.Equal(want) {
		t.Fatalf("session expiry = %v, want %v", session.ExpiresAt, want)
	}

	// The rotated-out token is dead.
	if _, err := f.svc.Refresh(ctx, login.RefreshToken, DeviceInfo{}); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("stale refresh error = %v, want ErrTokenRevoked", err)
	}
}

func TestRefreshSurvivesTouchWriteFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("flaky@example.com", "secret")

	login, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// The rotation has already revoked the old token by the time the session
	// write fails; the caller must still receive the replacement.
	f.sessions.touchErr = errors.New("connection refused")
	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken, DeviceInfo{})
	if err != nil {
		t.Fatalf("refresh during session store outage: %v", err)
	}
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must hand back the rotated token")
	}

	// The replacement keeps working once the store recovers.
	f.sessions.touchErr = nil
	if _, err := f.svc.Refresh(ctx, refreshed.RefreshToken, DeviceInfo{}); err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
}

func TestRefreshAfterSessionExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("idle@example.com", "secret")

	login, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	*f.clock = now.Add(f.cfg.Session.InactivityTTL + time.Minute)
	if _, err := f.svc.Refresh(ctx, login.RefreshToken, DeviceInfo{}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("error = %v, want ErrSessionExpired", err)
	}
}

func TestLogoutRevokesSessionAndToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("bye@example.com", "secret")

	login, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.svc.Logout(ctx, login.Session.ID, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	session, _ := f.sessions.GetByID(ctx, login.Session.ID)
	if session.RevokedAt == nil {
		t.Fatal("session must be revoked")
	}
	if _, err := f.svc.Refresh(ctx, login.RefreshToken, DeviceInfo{}); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh after logout error = %v, want ErrTokenRevoked", err)
	}

	// Logging out twice is harmless.
	if err := f.svc.Logout(ctx, login.Session.ID, login.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestLogoutEverywhere(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	identity := f.seedIdentity("all@example.com", "secret")

	first, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret", RememberMe: true})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := f.svc.Login(ctx, LoginInput{Email: identity.Email, Password: "secret"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := f.svc.LogoutEverywhere(ctx, identity.ID, "password_changed"); err != nil {
		t.Fatalf("logout everywhere: %v", err)
	}

	for _, raw := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := f.svc.Refresh(ctx, raw, DeviceInfo{}); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("refresh after global logout error = %v, want ErrTokenRevoked", err)
		}
	}
	active, _ := f.sessions.ListActiveByIdentity(ctx, identity.ID, *f.clock)
	if len(active) != 0 {
		t.Fatalf("active sessions = %d, want 0", len(active))
	}
}
