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
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

var (
	// ErrInvitationNotFound covers unknown and failed-verification tokens.
	// Callers must not be able to distinguish the two.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationExpired indicates the invitation window elapsed unredeemed.
	ErrInvitationExpired = errors.New("invitation expired")
	// ErrInvitationUsed indicates the invitation was already redeemed or revoked.
	ErrInvitationUsed = errors.New("invitation already used")
	// ErrInvitationConflict indicates the invitee already has an active
	// membership or a live invitation for the organization.
	ErrInvitationConflict = errors.New("invitation conflicts with existing membership or invitation")
)

const invitationTokenBytes = 32

// InvitationService manages single-use, time-boxed onboarding tokens. The
// raw token appears only in the outbound email; the store keeps an HMAC
// lookup digest, an Argon2 verification hash, and an AES-GCM sealed copy
// used solely for re-sending the original email.
type InvitationService struct {
	cfg           config.InvitationSettings
	invitations   port.InvitationRepository
	organizations port.OrganizationRepository
	roles         port.RoleRepository
	email         port.EmailSender
	events        port.EventPublisher
	hasher        port.PasswordHasher
	digester      *security.Digester
	sealer        *security.Sealer
	baseURL       string
	logger        *zap.Logger
	now           func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(
	cfg config.InvitationSettings,
	invitations port.InvitationRepository,
	organizations port.OrganizationRepository,
	roles port.RoleRepository,
	email port.EmailSender,
	events port.EventPublisher,
	hasher port.PasswordHasher,
	digester *security.Digester,
	sealer *security.Sealer,
	baseURL string,
	logger *zap.Logger,
) *InvitationService {
	return &InvitationService{
		cfg:           cfg,
		invitations:   invitations,
		organizations: organizations,
		roles:         roles,
		email:         email,
		events:        events,
		hasher:        hasher,
		digester:      digester,
		sealer:        sealer,
		baseURL:       baseURL,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *InvitationService) WithClock(clock func() time.Time) *InvitationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Create issues an invitation for an email into an organization with a role.
// At most one live invitation may exist per (email, organization), and the
// invitee must not already hold an active membership.
func (s *InvitationService) Create(ctx context.Context, email, organizationID, roleName, invitedBy string) (*domain.Invitation, error) {
	email = domain.NormalizeEmail(email)

	org, err := s.organizations.GetByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("lookup organization: %w", err)
	}
	if org.DeletedAt != nil {
		return nil, ErrOrganizationNotFound
	}

	if _, err := s.roles.GetByName(ctx, roleName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	membership, err := s.organizations.GetMembershipByEmail(ctx, organizationID, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	if err == nil && membership.IsActive {
		return nil, ErrInvitationConflict
	}

	now := s.now()
	if _, err := s.invitations.GetLive(ctx, email, organizationID, now); err == nil {
		return nil, ErrInvitationConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup live invitation: %w", err)
	}

	raw, err := security.GenerateSecureToken(invitationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}

	verification, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, fmt.Errorf("hash invitation token: %w", err)
	}
	sealed, err := s.sealer.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("seal invitation token: %w", err)
	}

	invitation := domain.Invitation{
		ID:               uuid.NewString(),
		Email:            email,
		OrganizationID:   organizationID,
		RoleName:         roleName,
		LookupDigest:     s.digester.Digest(raw),
		VerificationHash: verification,
		SealedToken:      sealed,
		InvitedBy:        invitedBy,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.TTL),
	}

	if err := s.invitations.Create(ctx, invitation); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvitationConflict
		}
		return nil, fmt.Errorf("persist invitation: %w", err)
	}

	s.sendInviteEmail(ctx, invitation, org.Name, raw)
	return &invitation, nil
}

// Redeem consumes an invitation token for the accepting identity: the token
// is verified, marked used, and the membership granted in one atomic
// transition. Exactly one of two concurrent redemptions succeeds.
func (s *InvitationService) Redeem(ctx context.Context, rawToken, identityID string) (*domain.Membership, error) {
	invitation, err := s.invitations.GetByLookupDigest(ctx, s.digester.Digest(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}

	ok, err := s.hasher.Verify(rawToken, invitation.VerificationHash)
	if err != nil || !ok {
		return nil, ErrInvitationNotFound
	}

	now := s.now()
	if invitation.UsedAt != nil {
		return nil, ErrInvitationUsed
	}
	if invitation.IsExpired(now) {
		return nil, ErrInvitationExpired
	}

	membership := domain.Membership{
		ID:             uuid.NewString(),
		OrganizationID: invitation.OrganizationID,
		IdentityID:     identityID,
		RoleName:       invitation.RoleName,
		IsActive:       true,
		JoinedAt:       now,
	}

	consumed, err := s.invitations.ConsumeAndGrant(ctx, invitation.ID, membership, now)
	if err != nil {
		return nil, fmt.Errorf("consume invitation: %w", err)
	}
	if !consumed {
		return nil, ErrInvitationUsed
	}

	s.publishRedeemed(ctx, *invitation, identityID, now)
	return &membership, nil
}

// Get looks up an invitation by id.
func (s *InvitationService) Get(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	invitation, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}
	return invitation, nil
}

// Revoke withdraws a pending invitation by marking it used without granting
// anything. Revoking a consumed invitation fails.
func (s *InvitationService) Revoke(ctx context.Context, invitationID string) error {
	flipped, err := s.invitations.MarkUsed(ctx, invitationID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if !flipped {
		return ErrInvitationUsed
	}
	return nil
}

// Resend re-delivers the original invitation email. The token is not
// rotated and the expiry does not move.
func (s *InvitationService) Resend(ctx context.Context, invitationID string) error {
	invitation, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("lookup invitation: %w", err)
	}

	now := s.now()
	if invitation.UsedAt != nil {
		return ErrInvitationUsed
	}
	if invitation.IsExpired(now) {
		return ErrInvitationExpired
	}

	raw, err := s.sealer.Open(invitation.SealedToken)
	if err != nil {
		return fmt.Errorf("unseal invitation token: %w", err)
	}

	org, err := s.organizations.GetByID(ctx, invitation.OrganizationID)
	if err != nil {
		return fmt.Errorf("lookup organization: %w", err)
	}

	s.sendInviteEmail(ctx, *invitation, org.Name, raw)
	return nil
}

func (s *InvitationService) sendInviteEmail(ctx context.Context, invitation domain.Invitation, orgName, rawToken string) {
	if s.email == nil {
		return
	}
	link := fmt.Sprintf("%s/invitations/accept?token=%s", s.baseURL, rawToken)
	err := s.email.Send(ctx, port.EmailMessage{
		To:      invitation.Email,
		Subject: fmt.Sprintf("You have been invited to join %s", orgName),
		TextBody: fmt.Sprintf(
			"You have been invited to join %s as %s.\n\nAccept the invitation: %s\n\nThe link expires at %s.",
			orgName, invitation.RoleName, link, invitation.ExpiresAt.Format(time.RFC1123)),
	})
	if err != nil {
		s.logger.Warn("send invitation email",
			zap.String("invitation_id", invitation.ID),
			zap.String("email", logger.MaskEmail(invitation.Email)),
			zap.Error(err))
	}
}

func (s *InvitationService) publishRedeemed(ctx context.Context, invitation domain.Invitation, identityID string, at time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.PublishInvitationRedeemed(ctx, domain.InvitationRedeemedEvent{
		InvitationID:   invitation.ID,
		OrganizationID: invitation.OrganizationID,
		IdentityID:     identityID,
		RoleName:       invitation.RoleName,
		RedeemedAt:     at,
	})
	if err != nil {
		s.logger.Warn("publish invitation redeemed event", zap.Error(err))
	}
}
