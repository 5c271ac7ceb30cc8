package usecase

import (
	"context"
	"errors"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
)

// ErrRateLimited indicates the caller exhausted the sliding-window attempt
// budget. Match with errors.Is; use AsRateLimited for the retry hint.
var ErrRateLimited = errors.New("too many attempts")

// RateLimitedError carries the retry hint alongside the sentinel.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return ErrRateLimited.Error() }

// Is reports sentinel equivalence so errors.Is(err, ErrRateLimited) matches.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// AsRateLimited extracts the retry hint from an error chain.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var limited *RateLimitedError
	ok := errors.As(err, &limited)
	return limited, ok
}

// RateLimitGuard enforces sliding-window brute-force limits keyed by both the
// target account and the request origin. Store outages fail open: a broken
// limiter never blocks legitimate logins.
type RateLimitGuard struct {
	cfg      config.RateLimitSettings
	store    port.RateLimitStore
	attempts port.LoginAttemptRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimitGuard constructs a RateLimitGuard.
func NewRateLimitGuard(cfg config.RateLimitSettings, store port.RateLimitStore, attempts port.LoginAttemptRepository, logger *zap.Logger) *RateLimitGuard {
	return &RateLimitGuard{
		cfg:      cfg,
		store:    store,
		attempts: attempts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (g *RateLimitGuard) WithClock(clock func() time.Time) *RateLimitGuard {
	if clock != nil {
		g.now = clock
	}
	return g
}

func emailKey(email string) string  { return "email:" + domain.NormalizeEmail(email) }
func originKey(origin string) string { return "origin:" + origin }

// Check reports whether a login attempt for the email/origin pair should be
// admitted. It never returns an error: limiter failures admit the attempt.
func (g *RateLimitGuard) Check(ctx context.Context, email string, origin *string) error {
	keys := []string{emailKey(email)}
	if origin != nil && *origin != "" {
		keys = append(keys, originKey(*origin))
	}

	now := g.now()
	for _, key := range keys {
		if err := g.store.TrimWindow(ctx, key, g.cfg.WindowDuration, now); err != nil {
			g.logger.Warn("rate limit trim failed, admitting", zap.String("key", maskLimitKey(key)), zap.Error(err))
			continue
		}

		count, err := g.store.CountAttempts(ctx, key, g.cfg.WindowDuration, now)
		if err != nil {
			g.logger.Warn("rate limit count failed, admitting", zap.String("key", maskLimitKey(key)), zap.Error(err))
			continue
		}

		if count >= g.cfg.MaxAttempts {
			return &RateLimitedError{RetryAfter: g.retryAfter(ctx, key, now)}
		}
	}

	return nil
}

// retryAfter picks the longer of the lockout period and the time left until
// the oldest recorded attempt slides out of the window.
func (g *RateLimitGuard) retryAfter(ctx context.Context, key string, now time.Time) time.Duration {
	retry := g.cfg.LockoutPeriod

	oldest, found, err := g.store.OldestAttempt(ctx, key, g.cfg.WindowDuration, now)
	if err == nil && found {
		if until := oldest.Add(g.cfg.WindowDuration).Sub(now); until > retry {
			retry = until
		}
	}

	if retry < time.Second {
		retry = time.Second
	}
	return retry
}

// RegisterFailure records a failed credential attempt in both windows and the
// durable ledger. All failures here are logged and swallowed.
func (g *RateLimitGuard) RegisterFailure(ctx context.Context, email string, identityID *string, device DeviceInfo) {
	now := g.now()

	if err := g.store.RecordAttempt(ctx, emailKey(email), now); err != nil {
		g.logger.Warn("record email attempt", zap.Error(err))
	}
	if device.Origin != nil && *device.Origin != "" {
		if err := g.store.RecordAttempt(ctx, originKey(*device.Origin), now); err != nil {
			g.logger.Warn("record origin attempt", zap.Error(err))
		}
	}

	g.recordLedger(ctx, email, identityID, device, false, now)
}

// RegisterSuccess clears both the account and origin windows for the pair
// and records the successful login in the ledger.
func (g *RateLimitGuard) RegisterSuccess(ctx context.Context, email string, identityID *string, device DeviceInfo) {
	if err := g.store.ClearAttempts(ctx, emailKey(email)); err != nil {
		g.logger.Warn("clear email attempts", zap.Error(err))
	}
	if device.Origin != nil && *device.Origin != "" {
		if err := g.store.ClearAttempts(ctx, originKey(*device.Origin)); err != nil {
			g.logger.Warn("clear origin attempts", zap.Error(err))
		}
	}

	g.recordLedger(ctx, email, identityID, device, true, g.now())
}

func (g *RateLimitGuard) recordLedger(ctx context.Context, email string, identityID *string, device DeviceInfo, succeeded bool, at time.Time) {
	if g.attempts == nil {
		return
	}
	err := g.attempts.Record(ctx, domain.LoginAttempt{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Email:      domain.NormalizeEmail(email),
		Origin:     device.Origin,
		UserAgent:  device.UserAgent,
		Succeeded:  succeeded,
		CreatedAt:  at,
	})
	if err != nil {
		g.logger.Warn("record login attempt", zap.Error(err))
	}
}

func maskLimitKey(key string) string {
	if len(key) > 6 && key[:6] == "email:" {
		return "email:" + logger.MaskEmail(key[6:])
	}
	return key
}
