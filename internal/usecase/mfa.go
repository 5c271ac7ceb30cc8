package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrMFANotEnrolled indicates the identity has no verified factor for
	// the requested method.
	ErrMFANotEnrolled = errors.New("mfa method not enrolled")
	// ErrMFAAlreadyEnrolled indicates an enrollment already exists for the
	// (identity, method) pair.
	ErrMFAAlreadyEnrolled = errors.New("mfa method already enrolled")
	// ErrMFAChallengeFailed indicates the submitted code is wrong, or the
	// challenge is missing or expired. The caller cannot tell which.
	ErrMFAChallengeFailed = errors.New("mfa challenge failed")
	// ErrMFAAttemptsExhausted indicates the challenge attempt budget hit
	// zero; a new challenge must be started.
	ErrMFAAttemptsExhausted = errors.New("mfa attempts exhausted")
)

// EnrollmentResult carries the provisioning material returned exactly once.
type EnrollmentResult struct {
	EnrollmentID string
	Secret       string
	ProvisionURI string
	BackupCodes  []string
}

// MFAService manages second-factor enrollment, challenge issuance, and
// verification. Challenges fail closed: any store error denies.
type MFAService struct {
	cfg         config.MFASettings
	enrollments port.MFARepository
	challenges  port.ChallengeStore
	identities  port.IdentityRepository
	totp        *security.TOTPManager
	email       port.EmailSender
	logger      *zap.Logger
	now         func() time.Time
}

// NewMFAService constructs an MFAService.
func NewMFAService(
	cfg config.MFASettings,
	enrollments port.MFARepository,
	challenges port.ChallengeStore,
	identities port.IdentityRepository,
	totp *security.TOTPManager,
	email port.EmailSender,
	logger *zap.Logger,
) *MFAService {
	return &MFAService{
		cfg:         cfg,
		enrollments: enrollments,
		challenges:  challenges,
		identities:  identities,
		totp:        totp,
		email:       email,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *MFAService) WithClock(clock func() time.Time) *MFAService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// EnrollTOTP creates an unverified TOTP enrollment and a fresh backup code
// set. The secret, provisioning URI, and raw backup codes are returned once
// and never stored in recoverable form (the secret itself must persist for
// code verification; backup codes persist only as hashes).
func (s *MFAService) EnrollTOTP(ctx context.Context, identityID string) (*EnrollmentResult, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if existing, err := s.enrollments.GetEnrollment(ctx, identityID, domain.MFAMethodTOTP); err == nil && existing.IsVerified {
		return nil, ErrMFAAlreadyEnrolled
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup enrollment: %w", err)
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	enrollment := domain.MFAEnrollment{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Method:     domain.MFAMethodTOTP,
		Secret:     &secret,
		CreatedAt:  s.now(),
	}
	if err := s.enrollments.CreateEnrollment(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("persist enrollment: %w", err)
	}

	codes, err := s.generateBackupCodes(ctx, identityID)
	if err != nil {
		return nil, err
	}

	return &EnrollmentResult{
		EnrollmentID: enrollment.ID,
		Secret:       secret,
		ProvisionURI: s.totp.ProvisionURI(secret, identity.Email),
		BackupCodes:  codes,
	}, nil
}

// VerifyTOTPEnrollment confirms an enrollment by checking a live code. The
// first verified factor becomes primary and turns the MFA flag on.
func (s *MFAService) VerifyTOTPEnrollment(ctx context.Context, identityID, code string) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, identityID, domain.MFAMethodTOTP)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMFANotEnrolled
		}
		return fmt.Errorf("lookup enrollment: %w", err)
	}
	if enrollment.Secret == nil {
		return ErrMFANotEnrolled
	}

	ok, err := s.totp.VerifyCode(*enrollment.Secret, code, s.now())
	if err != nil || !ok {
		return ErrMFAChallengeFailed
	}

	others, err := s.enrollments.ListEnrollments(ctx, identityID)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	primary := true
	for _, other := range others {
		if other.IsVerified && other.IsPrimary {
			primary = false
			break
		}
	}

	if err := s.enrollments.MarkVerified(ctx, enrollment.ID, primary, s.now()); err != nil {
		return fmt.Errorf("mark enrollment verified: %w", err)
	}
	if err := s.identities.SetMFAEnabled(ctx, identityID, true); err != nil {
		return fmt.Errorf("enable mfa flag: %w", err)
	}
	return nil
}

// VerifyTOTP validates a live TOTP code against the verified enrollment.
func (s *MFAService) VerifyTOTP(ctx context.Context, identityID, code string) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, identityID, domain.MFAMethodTOTP)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMFANotEnrolled
		}
		return fmt.Errorf("lookup enrollment: %w", err)
	}
	if !enrollment.IsVerified || enrollment.Secret == nil {
		return ErrMFANotEnrolled
	}

	ok, err := s.totp.VerifyCode(*enrollment.Secret, code, s.now())
	if err != nil || !ok {
		return ErrMFAChallengeFailed
	}
	return nil
}

// StartChallenge issues a one-time-code challenge over a delivery method.
// An existing challenge for the pair is replaced wholesale; the attempt
// budget never carries over.
func (s *MFAService) StartChallenge(ctx context.Context, identityID string, method domain.MFAMethod) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, identityID, method)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMFANotEnrolled
		}
		return fmt.Errorf("lookup enrollment: %w", err)
	}
	if !enrollment.IsVerified {
		return ErrMFANotEnrolled
	}

	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("generate challenge code: %w", err)
	}

	now := s.now()
	challenge := domain.MFAChallenge{
		ID:                uuid.NewString(),
		IdentityID:        identityID,
		Method:            method,
		CodeHash:          security.HashToken(code),
		AttemptsRemaining: s.cfg.ChallengeAttempts,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Put(ctx, challenge, s.cfg.ChallengeTTL); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	s.deliverCode(ctx, identityID, method, enrollment.Address, code)
	return nil
}

// VerifyChallenge checks a submitted challenge code. Wrong codes consume one
// attempt; a correct code after exhaustion still fails. A correct code within
// budget consumes the whole challenge.
func (s *MFAService) VerifyChallenge(ctx context.Context, identityID string, method domain.MFAMethod, code string) error {
	challenge, err := s.challenges.Get(ctx, identityID, method)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMFAChallengeFailed
		}
		return fmt.Errorf("lookup challenge: %w", err)
	}

	if challenge.IsExpired(s.now()) {
		return ErrMFAChallengeFailed
	}
	if challenge.AttemptsRemaining <= 0 {
		return ErrMFAAttemptsExhausted
	}

	submitted := security.HashToken(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) != 1 {
		remaining, err := s.challenges.DecrementAttempts(ctx, identityID, method)
		if err != nil {
			return fmt.Errorf("decrement challenge attempts: %w", err)
		}
		if remaining <= 0 {
			return ErrMFAAttemptsExhausted
		}
		return ErrMFAChallengeFailed
	}

	if err := s.challenges.Consume(ctx, identityID, method); err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	return nil
}

// VerifyBackupCode consumes a recovery code. Each code works exactly once;
// a race between two submissions of the same code admits only one.
func (s *MFAService) VerifyBackupCode(ctx context.Context, identityID, code string) error {
	codes, err := s.enrollments.ListUnusedBackupCodes(ctx, identityID)
	if err != nil {
		return fmt.Errorf("list backup codes: %w", err)
	}

	submitted := security.HashToken(normalizeBackupCode(code))
	for _, candidate := range codes {
		if subtle.ConstantTimeCompare([]byte(submitted), []byte(candidate.CodeHash)) != 1 {
			continue
		}
		consumed, err := s.enrollments.ConsumeBackupCode(ctx, candidate.ID, s.now())
		if err != nil {
			return fmt.Errorf("consume backup code: %w", err)
		}
		if !consumed {
			return ErrMFAChallengeFailed
		}
		return nil
	}
	return ErrMFAChallengeFailed
}

// RegenerateBackupCodes replaces the entire recovery code set.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	return s.generateBackupCodes(ctx, identityID)
}

// Disable removes every factor, backup code, and pending challenge for the
// identity and clears the MFA flag. Removal of enrollments and codes is
// transactional in the store.
func (s *MFAService) Disable(ctx context.Context, identityID string) error {
	if err := s.enrollments.DeleteAllForIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("delete enrollments: %w", err)
	}
	if err := s.challenges.DeleteAllForIdentity(ctx, identityID); err != nil {
		s.logger.Warn("delete pending challenges", zap.Error(err))
	}
	if err := s.identities.SetMFAEnabled(ctx, identityID, false); err != nil {
		return fmt.Errorf("clear mfa flag: %w", err)
	}
	return nil
}

// HasVerifiedFactor reports whether any verified enrollment exists.
func (s *MFAService) HasVerifiedFactor(ctx context.Context, identityID string) (bool, domain.MFAMethod, error) {
	enrollments, err := s.enrollments.ListEnrollments(ctx, identityID)
	if err != nil {
		return false, "", fmt.Errorf("list enrollments: %w", err)
	}

	var fallback domain.MFAMethod
	for _, enrollment := range enrollments {
		if !enrollment.IsVerified {
			continue
		}
		if enrollment.IsPrimary {
			return true, enrollment.Method, nil
		}
		if fallback == "" {
			fallback = enrollment.Method
		}
	}
	if fallback != "" {
		return true, fallback, nil
	}
	return false, "", nil
}

func (s *MFAService) generateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	raw := make([]string, 0, s.cfg.BackupCodeCount)
	hashed := make([]domain.BackupCode, 0, s.cfg.BackupCodeCount)
	now := s.now()

	for i := 0; i < s.cfg.BackupCodeCount; i++ {
		code, err := security.GenerateSecureToken(6)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		raw = append(raw, code)
		hashed = append(hashed, domain.BackupCode{
			ID:         uuid.NewString(),
			IdentityID: identityID,
			CodeHash:   security.HashToken(code),
			CreatedAt:  now,
		})
	}

	if err := s.enrollments.ReplaceBackupCodes(ctx, identityID, hashed); err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}
	return raw, nil
}

func (s *MFAService) deliverCode(ctx context.Context, identityID string, method domain.MFAMethod, address *string, code string) {
	if method != domain.MFAMethodEmail || s.email == nil || address == nil {
		return
	}
	err := s.email.Send(ctx, port.EmailMessage{
		To:       *address,
		Subject:  "Your verification code",
		TextBody: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.cfg.ChallengeTTL.Minutes())),
	})
	if err != nil {
		s.logger.Warn("send challenge email",
			zap.String("identity_id", identityID),
			zap.String("email", logger.MaskEmail(*address)),
			zap.Error(err))
	}
}

func normalizeBackupCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "-", "")
}
