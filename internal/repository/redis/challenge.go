package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

const (
	defaultChallengePrefix = "mfa_challenge"

	fieldChallengeID = "id"
	fieldCodeHash    = "code_hash"
	fieldAttempts    = "attempts"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
)

// ChallengeRepository persists ephemeral MFA challenges in Redis hashes,
// keyed by (identity, method). The hash TTL enforces challenge expiry even
// when nobody ever answers.
type ChallengeRepository struct {
	client *red.Client
	prefix string
}

// NewChallengeRepository constructs a challenge store with the provided Redis client and key prefix.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeRepository{client: client, prefix: prefix}
}

// Put stores a challenge, replacing any existing one for the pair. The
// previous attempt budget never carries over into the replacement.
func (r *ChallengeRepository) Put(ctx context.Context, challenge domain.MFAChallenge, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.key(challenge.IdentityID, challenge.Method)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldChallengeID: challenge.ID,
		fieldCodeHash:    challenge.CodeHash,
		fieldAttempts:    strconv.Itoa(challenge.AttemptsRemaining),
		fieldCreatedAt:   strconv.FormatInt(challenge.CreatedAt.UnixNano(), 10),
		fieldExpiresAt:   strconv.FormatInt(challenge.ExpiresAt.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}
	return nil
}

// Get retrieves the pending challenge for the pair.
func (r *ChallengeRepository) Get(ctx context.Context, identityID string, method domain.MFAMethod) (*domain.MFAChallenge, error) {
	key := r.key(identityID, method)

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnixNano(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnixNano(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.MFAChallenge{
		ID:                values[fieldChallengeID],
		IdentityID:        identityID,
		Method:            method,
		CodeHash:          values[fieldCodeHash],
		AttemptsRemaining: attempts,
		CreatedAt:         createdAt,
		ExpiresAt:         expiresAt,
	}, nil
}

// DecrementAttempts burns one attempt and returns the remaining budget.
// HIncrBy is atomic, so concurrent wrong answers each consume an attempt.
func (r *ChallengeRepository) DecrementAttempts(ctx context.Context, identityID string, method domain.MFAMethod) (int, error) {
	key := r.key(identityID, method)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists challenge: %w", err)
	}
	if exists == 0 {
		return 0, repository.ErrNotFound
	}

	remaining, err := r.client.HIncrBy(ctx, key, fieldAttempts, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby challenge: %w", err)
	}
	if remaining < 0 {
		remaining = 0
	}

	return int(remaining), nil
}

// Consume removes the challenge after a successful answer.
func (r *ChallengeRepository) Consume(ctx context.Context, identityID string, method domain.MFAMethod) error {
	removed, err := r.client.Del(ctx, r.key(identityID, method)).Result()
	if err != nil {
		return fmt.Errorf("redis del challenge: %w", err)
	}
	if removed == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAllForIdentity drops every pending challenge of the identity.
func (r *ChallengeRepository) DeleteAllForIdentity(ctx context.Context, identityID string) error {
	for _, method := range []domain.MFAMethod{domain.MFAMethodTOTP, domain.MFAMethodEmail, domain.MFAMethodSMS} {
		if err := r.client.Del(ctx, r.key(identityID, method)).Err(); err != nil {
			return fmt.Errorf("redis del challenge: %w", err)
		}
	}
	return nil
}

func (r *ChallengeRepository) key(identityID string, method domain.MFAMethod) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, identityID, method)
}

func parseUnixNano(raw string) (time.Time, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, value).UTC(), nil
}
