package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

// Shared in-memory doubles for the service tests. Every fake is map backed
// and safe for the single-goroutine access the tests perform; the rate limit
// store takes a mutex because the fail-open tests hammer it from helpers.

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name:    "auth-test",
			Env:     "test",
			BaseURL: "http://localhost:8080",
		},
		JWT: config.JWTSettings{
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  720 * time.Hour,
			RememberMeTTL:    2160 * time.Hour,
			PasswordResetTTL: 30 * time.Minute,
			TokenDigestKey:   "0123456789abcdef0123456789abcdef",
		},
		Session: config.SessionSettings{
			InactivityTTL: 30 * time.Minute,
		},
		RateLimit: config.RateLimitSettings{
			MaxAttempts:    5,
			WindowDuration: 15 * time.Minute,
			LockoutPeriod:  30 * time.Minute,
		},
		MFA: config.MFASettings{
			ChallengeTTL:      5 * time.Minute,
			ChallengeAttempts: 3,
			CodeLength:        6,
			BackupCodeCount:   10,
			TOTPIssuer:        "auth-test",
		},
		Invitation: config.InvitationSettings{
			TTL: 72 * time.Hour,
		},
	}
}

// identities

type fakeIdentityRepo struct {
	identities map[string]*domain.Identity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: make(map[string]*domain.Identity)}
}

func (r *fakeIdentityRepo) add(identity domain.Identity) *domain.Identity {
	stored := identity
	r.identities[identity.ID] = &stored
	return &stored
}

func (r *fakeIdentityRepo) Create(_ context.Context, identity domain.Identity) error {
	for _, existing := range r.identities {
		if existing.Email == identity.Email {
			return repository.ErrConflict
		}
	}
	r.add(identity)
	return nil
}

func (r *fakeIdentityRepo) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	if identity, ok := r.identities[id]; ok {
		clone := *identity
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeIdentityRepo) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	for _, identity := range r.identities {
		if identity.Email == email {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeIdentityRepo) UpdateStatus(_ context.Context, id string, status domain.IdentityStatus) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Status = status
	return nil
}

func (r *fakeIdentityRepo) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = &passwordHash
	identity.LastPasswordChange = changedAt
	return nil
}

func (r *fakeIdentityRepo) UpdateLoginState(_ context.Context, id string, failedAttempts int, lockedUntil *time.Time, lastLogin *time.Time) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.FailedAttempts = failedAttempts
	identity.LockedUntil = lockedUntil
	if lastLogin != nil {
		identity.LastLogin = lastLogin
	}
	return nil
}

func (r *fakeIdentityRepo) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.MFAEnabled = enabled
	return nil
}

func (r *fakeIdentityRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.DeletedAt = &at
	return nil
}

// login attempt ledger

type fakeAttemptLedger struct {
	attempts []domain.LoginAttempt
}

func (r *fakeAttemptLedger) Record(_ context.Context, attempt domain.LoginAttempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *fakeAttemptLedger) CountFailedSince(_ context.Context, email, origin string, since time.Time) (int, error) {
	count := 0
	for _, attempt := range r.attempts {
		if attempt.Succeeded || attempt.CreatedAt.Before(since) {
			continue
		}
		if attempt.Email == email || (origin != "" && attempt.Origin != nil && *attempt.Origin == origin) {
			count++
		}
	}
	return count, nil
}

// opaque tokens

type fakeTokenRepo struct {
	tokens map[string]*domain.OpaqueToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.OpaqueToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, token domain.OpaqueToken) error {
	stored := token
	r.tokens[token.ID] = &stored
	return nil
}

func (r *fakeTokenRepo) GetByHash(_ context.Context, kind domain.TokenKind, hash string) (*domain.OpaqueToken, error) {
	for _, token := range r.tokens {
		if token.Kind == kind && token.TokenHash == hash {
			clone := *token
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) Revoke(_ context.Context, tokenID string, at time.Time) error {
	token, ok := r.tokens[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &at
	}
	return nil
}

func (r *fakeTokenRepo) RevokeAllForIdentity(_ context.Context, identityID string, kind domain.TokenKind, at time.Time) (int, error) {
	count := 0
	for _, token := range r.tokens {
		if token.IdentityID == identityID && token.Kind == kind && token.RevokedAt == nil {
			token.RevokedAt = &at
			count++
		}
	}
	return count, nil
}

// sessions

type fakeSessionRepo struct {
	sessions map[string]*domain.Session
	touchErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session domain.Session) error {
	stored := session
	r.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	if session, ok := r.sessions[sessionID]; ok {
		clone := *session
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) Touch(_ context.Context, sessionID string, expiresAt time.Time, origin, userAgent *string) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if expiresAt.After(session.ExpiresAt) {
		session.ExpiresAt = expiresAt
	}
	session.LastActivityAt = time.Now().UTC()
	if origin != nil {
		if session.OriginFirst == nil {
			session.OriginFirst = origin
		}
		session.OriginLast = origin
	}
	if userAgent != nil {
		session.UserAgent = userAgent
	}
	return nil
}

func (r *fakeSessionRepo) BindRefreshToken(_ context.Context, sessionID, refreshTokenID string) error {
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.RefreshTokenID = &refreshTokenID
	return nil
}

func (r *fakeSessionRepo) Revoke(_ context.Context, sessionID, reason string, at time.Time) error {
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.Revoke(at, reason)
	return nil
}

func (r *fakeSessionRepo) RevokeAllForIdentity(_ context.Context, identityID, reason string, at time.Time) (int, error) {
	count := 0
	for _, session := range r.sessions {
		if session.IdentityID == identityID && session.RevokedAt == nil {
			session.Revoke(at, reason)
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) ListActiveByIdentity(_ context.Context, identityID string, at time.Time) ([]domain.Session, error) {
	var active []domain.Session
	for _, session := range r.sessions {
		if session.IdentityID == identityID && session.IsActive(at) {
			active = append(active, *session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivityAt.After(active[j].LastActivityAt)
	})
	return active, nil
}

// rbac

type fakeRoleRepo struct {
	roles map[string]*domain.Role
}

func newFakeRoleRepo(roles ...domain.Role) *fakeRoleRepo {
	r := &fakeRoleRepo{roles: make(map[string]*domain.Role)}
	for _, role := range roles {
		stored := role
		r.roles[role.ID] = &stored
	}
	return r
}

func (r *fakeRoleRepo) Create(_ context.Context, role domain.Role) error {
	stored := role
	r.roles[role.ID] = &stored
	return nil
}

func (r *fakeRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	for _, role := range r.roles {
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Level < roles[j].Level })
	return roles, nil
}

func (r *fakeRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			clone := *role
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if role, ok := r.roles[id]; ok {
		clone := *role
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRoleRepo) AttachPermissions(context.Context, string, []string) error {
	return errors.New("unexpected call: AttachPermissions")
}

type fakePermissionRepo struct {
	permissions map[string]*domain.Permission
	rolePerms   map[string][]string
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{
		permissions: make(map[string]*domain.Permission),
		rolePerms:   make(map[string][]string),
	}
}

func (r *fakePermissionRepo) add(perm domain.Permission, roleIDs ...string) {
	stored := perm
	r.permissions[perm.ID] = &stored
	for _, roleID := range roleIDs {
		r.rolePerms[roleID] = append(r.rolePerms[roleID], perm.ID)
	}
}

func (r *fakePermissionRepo) Create(_ context.Context, permission domain.Permission) error {
	r.add(permission)
	return nil
}

func (r *fakePermissionRepo) GetByName(_ context.Context, name string) (*domain.Permission, error) {
	for _, perm := range r.permissions {
		if perm.Name == name {
			clone := *perm
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePermissionRepo) ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error) {
	return r.ListByRoles(ctx, []string{roleID})
}

func (r *fakePermissionRepo) ListByRoles(_ context.Context, roleIDs []string) ([]domain.Permission, error) {
	seen := make(map[string]bool)
	var perms []domain.Permission
	for _, roleID := range roleIDs {
		for _, permID := range r.rolePerms[roleID] {
			if seen[permID] {
				continue
			}
			seen[permID] = true
			perms = append(perms, *r.permissions[permID])
		}
	}
	return perms, nil
}

func (r *fakePermissionRepo) ListByIDs(_ context.Context, ids []string) ([]domain.Permission, error) {
	var perms []domain.Permission
	for _, id := range ids {
		if perm, ok := r.permissions[id]; ok {
			perms = append(perms, *perm)
		}
	}
	return perms, nil
}

type fakeAssignmentRepo struct {
	assignments []domain.RoleAssignment
	grants      []domain.DirectGrant
}

func (r *fakeAssignmentRepo) Upsert(_ context.Context, assignment domain.RoleAssignment) error {
	for _, existing := range r.assignments {
		if existing.IdentityID == assignment.IdentityID &&
			existing.RoleID == assignment.RoleID &&
			sameScope(existing.OrganizationID, assignment.OrganizationID) {
			return nil
		}
	}
	r.assignments = append(r.assignments, assignment)
	return nil
}

func (r *fakeAssignmentRepo) Remove(_ context.Context, identityID, roleID string, organizationID *string) error {
	kept := r.assignments[:0]
	for _, assignment := range r.assignments {
		if assignment.IdentityID == identityID && assignment.RoleID == roleID && sameScope(assignment.OrganizationID, organizationID) {
			continue
		}
		kept = append(kept, assignment)
	}
	r.assignments = kept
	return nil
}

func (r *fakeAssignmentRepo) ListByIdentity(_ context.Context, identityID string) ([]domain.RoleAssignment, error) {
	var matched []domain.RoleAssignment
	for _, assignment := range r.assignments {
		if assignment.IdentityID == identityID {
			matched = append(matched, assignment)
		}
	}
	return matched, nil
}

func (r *fakeAssignmentRepo) ListGrantsByIdentity(_ context.Context, identityID string) ([]domain.DirectGrant, error) {
	var matched []domain.DirectGrant
	for _, grant := range r.grants {
		if grant.IdentityID == identityID {
			matched = append(matched, grant)
		}
	}
	return matched, nil
}

func (r *fakeAssignmentRepo) CreateGrant(_ context.Context, grant domain.DirectGrant) error {
	r.grants = append(r.grants, grant)
	return nil
}

func (r *fakeAssignmentRepo) RemoveGrant(_ context.Context, grantID string) error {
	kept := r.grants[:0]
	for _, grant := range r.grants {
		if grant.ID == grantID {
			continue
		}
		kept = append(kept, grant)
	}
	r.grants = kept
	return nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// organizations

type fakeOrgRepo struct {
	orgs         map[string]*domain.Organization
	memberships  []domain.Membership
	modules      map[string]bool
	moduleGrants map[string]*domain.ModuleGrant
}

func newFakeOrgRepo(orgs ...domain.Organization) *fakeOrgRepo {
	r := &fakeOrgRepo{
		orgs:         make(map[string]*domain.Organization),
		modules:      make(map[string]bool),
		moduleGrants: make(map[string]*domain.ModuleGrant),
	}
	for _, org := range orgs {
		stored := org
		r.orgs[org.ID] = &stored
	}
	return r
}

func moduleKey(orgID, identityID, module string) string {
	return orgID + "/" + identityID + "/" + module
}

func (r *fakeOrgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	if org, ok := r.orgs[id]; ok {
		clone := *org
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOrgRepo) GetMembership(_ context.Context, organizationID, identityID string) (*domain.Membership, error) {
	for _, membership := range r.memberships {
		if membership.OrganizationID == organizationID && membership.IdentityID == identityID {
			clone := membership
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOrgRepo) GetMembershipByEmail(context.Context, string, string) (*domain.Membership, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeOrgRepo) AddMember(_ context.Context, membership domain.Membership) error {
	r.memberships = append(r.memberships, membership)
	return nil
}

func (r *fakeOrgRepo) IsModuleEnabled(_ context.Context, organizationID, moduleName string) (bool, error) {
	return r.modules[organizationID+"/"+moduleName], nil
}

func (r *fakeOrgRepo) GetModuleGrant(_ context.Context, organizationID, identityID, moduleName string) (*domain.ModuleGrant, error) {
	if grant, ok := r.moduleGrants[moduleKey(organizationID, identityID, moduleName)]; ok {
		clone := *grant
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOrgRepo) UpsertModuleGrant(_ context.Context, grant domain.ModuleGrant) error {
	stored := grant
	r.moduleGrants[moduleKey(grant.OrganizationID, grant.IdentityID, grant.ModuleName)] = &stored
	return nil
}

// mfa

type fakeMFARepo struct {
	enrollments map[string]*domain.MFAEnrollment
	backupCodes []*domain.BackupCode
}

func newFakeMFARepo() *fakeMFARepo {
	return &fakeMFARepo{enrollments: make(map[string]*domain.MFAEnrollment)}
}

func enrollmentKey(identityID string, method domain.MFAMethod) string {
	return identityID + "/" + string(method)
}

func (r *fakeMFARepo) CreateEnrollment(_ context.Context, enrollment domain.MFAEnrollment) error {
	key := enrollmentKey(enrollment.IdentityID, enrollment.Method)
	if existing, ok := r.enrollments[key]; ok && existing.IsVerified {
		return repository.ErrConflict
	}
	stored := enrollment
	r.enrollments[key] = &stored
	return nil
}

func (r *fakeMFARepo) GetEnrollment(_ context.Context, identityID string, method domain.MFAMethod) (*domain.MFAEnrollment, error) {
	if enrollment, ok := r.enrollments[enrollmentKey(identityID, method)]; ok {
		clone := *enrollment
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeMFARepo) ListEnrollments(_ context.Context, identityID string) ([]domain.MFAEnrollment, error) {
	var enrollments []domain.MFAEnrollment
	for _, enrollment := range r.enrollments {
		if enrollment.IdentityID == identityID {
			enrollments = append(enrollments, *enrollment)
		}
	}
	return enrollments, nil
}

func (r *fakeMFARepo) MarkVerified(_ context.Context, enrollmentID string, primary bool, at time.Time) error {
	for _, enrollment := range r.enrollments {
		if enrollment.ID == enrollmentID {
			enrollment.IsVerified = true
			enrollment.IsPrimary = primary
			enrollment.VerifiedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeMFARepo) DeleteAllForIdentity(_ context.Context, identityID string) error {
	for key, enrollment := range r.enrollments {
		if enrollment.IdentityID == identityID {
			delete(r.enrollments, key)
		}
	}
	kept := r.backupCodes[:0]
	for _, code := range r.backupCodes {
		if code.IdentityID != identityID {
			kept = append(kept, code)
		}
	}
	r.backupCodes = kept
	return nil
}

func (r *fakeMFARepo) ReplaceBackupCodes(_ context.Context, identityID string, codes []domain.BackupCode) error {
	kept := r.backupCodes[:0]
	for _, code := range r.backupCodes {
		if code.IdentityID != identityID {
			kept = append(kept, code)
		}
	}
	r.backupCodes = kept
	for _, code := range codes {
		stored := code
		r.backupCodes = append(r.backupCodes, &stored)
	}
	return nil
}

func (r *fakeMFARepo) ListUnusedBackupCodes(_ context.Context, identityID string) ([]domain.BackupCode, error) {
	var codes []domain.BackupCode
	for _, code := range r.backupCodes {
		if code.IdentityID == identityID && !code.IsUsed {
			codes = append(codes, *code)
		}
	}
	return codes, nil
}

func (r *fakeMFARepo) ConsumeBackupCode(_ context.Context, codeID string, at time.Time) (bool, error) {
	for _, code := range r.backupCodes {
		if code.ID == codeID {
			if code.IsUsed {
				return false, nil
			}
			code.IsUsed = true
			code.UsedAt = &at
			return true, nil
		}
	}
	return false, repository.ErrNotFound
}

type fakeChallengeStore struct {
	challenges map[string]*domain.MFAChallenge
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string]*domain.MFAChallenge)}
}

func (s *fakeChallengeStore) Put(_ context.Context, challenge domain.MFAChallenge, _ time.Duration) error {
	stored := challenge
	s.challenges[enrollmentKey(challenge.IdentityID, challenge.Method)] = &stored
	return nil
}

func (s *fakeChallengeStore) Get(_ context.Context, identityID string, method domain.MFAMethod) (*domain.MFAChallenge, error) {
	if challenge, ok := s.challenges[enrollmentKey(identityID, method)]; ok {
		clone := *challenge
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeChallengeStore) DecrementAttempts(_ context.Context, identityID string, method domain.MFAMethod) (int, error) {
	challenge, ok := s.challenges[enrollmentKey(identityID, method)]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if challenge.AttemptsRemaining > 0 {
		challenge.AttemptsRemaining--
	}
	return challenge.AttemptsRemaining, nil
}

func (s *fakeChallengeStore) Consume(_ context.Context, identityID string, method domain.MFAMethod) error {
	key := enrollmentKey(identityID, method)
	if _, ok := s.challenges[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.challenges, key)
	return nil
}

func (s *fakeChallengeStore) DeleteAllForIdentity(_ context.Context, identityID string) error {
	for key, challenge := range s.challenges {
		if challenge.IdentityID == identityID {
			delete(s.challenges, key)
		}
	}
	return nil
}

// invitations

type fakeInvitationRepo struct {
	invitations map[string]*domain.Invitation
	memberships *fakeOrgRepo
}

func newFakeInvitationRepo(orgs *fakeOrgRepo) *fakeInvitationRepo {
	return &fakeInvitationRepo{
		invitations: make(map[string]*domain.Invitation),
		memberships: orgs,
	}
}

func (r *fakeInvitationRepo) Create(_ context.Context, invitation domain.Invitation) error {
	stored := invitation
	r.invitations[invitation.ID] = &stored
	return nil
}

func (r *fakeInvitationRepo) GetByLookupDigest(_ context.Context, digest string) (*domain.Invitation, error) {
	for _, invitation := range r.invitations {
		if invitation.LookupDigest == digest {
			clone := *invitation
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeInvitationRepo) GetLive(_ context.Context, email, organizationID string, at time.Time) (*domain.Invitation, error) {
	for _, invitation := range r.invitations {
		if invitation.Email == email && invitation.OrganizationID == organizationID && invitation.IsLive(at) {
			clone := *invitation
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeInvitationRepo) GetByID(_ context.Context, id string) (*domain.Invitation, error) {
	if invitation, ok := r.invitations[id]; ok {
		clone := *invitation
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeInvitationRepo) ConsumeAndGrant(ctx context.Context, invitationID string, membership domain.Membership, at time.Time) (bool, error) {
	invitation, ok := r.invitations[invitationID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !invitation.Consume(at, membership.IdentityID) {
		return false, nil
	}
	if r.memberships != nil {
		_ = r.memberships.AddMember(ctx, membership)
	}
	return true, nil
}

func (r *fakeInvitationRepo) MarkUsed(_ context.Context, invitationID string, at time.Time) (bool, error) {
	invitation, ok := r.invitations[invitationID]
	if !ok {
		return false, repository.ErrNotFound
	}
	return invitation.Consume(at, ""), nil
}

// audit

type fakeAuditRepo struct {
	events []domain.AuditEvent
}

func (r *fakeAuditRepo) Append(_ context.Context, event domain.AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeAuditRepo) Query(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	var matched []domain.AuditEvent
	for _, event := range r.events {
		if filter.ActorID != nil && (event.ActorID == nil || *event.ActorID != *filter.ActorID) {
			continue
		}
		if filter.Category != nil && event.Category != *filter.Category {
			continue
		}
		matched = append(matched, event)
	}
	return matched, nil
}

func (r *fakeAuditRepo) Aggregate(_ context.Context, from, to time.Time) ([]domain.AuditBucket, error) {
	counts := make(map[string]*domain.AuditBucket)
	for _, event := range r.events {
		if event.CreatedAt.Before(from) || !event.CreatedAt.Before(to) {
			continue
		}
		key := string(event.Category) + "/" + string(event.Severity) + "/" + string(event.Result)
		if bucket, ok := counts[key]; ok {
			bucket.Count++
			continue
		}
		counts[key] = &domain.AuditBucket{
			Category: event.Category,
			Severity: event.Severity,
			Result:   event.Result,
			Count:    1,
		}
	}
	var buckets []domain.AuditBucket
	for _, bucket := range counts {
		buckets = append(buckets, *bucket)
	}
	return buckets, nil
}

// rate limit store

type fakeRateLimitStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	failWith error
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{attempts: make(map[string][]time.Time)}
}

func (s *fakeRateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

func (s *fakeRateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	count := 0
	for _, at := range s.attempts[identifier] {
		if !at.Before(reference.Add(-window)) {
			count++
		}
	}
	return count, nil
}

func (s *fakeRateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	cutoff := reference.Add(-window)
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	s.attempts[identifier] = kept
	return nil
}

func (s *fakeRateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return time.Time{}, false, s.failWith
	}
	cutoff := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range s.attempts[identifier] {
		if at.Before(cutoff) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

func (s *fakeRateLimitStore) ClearAttempts(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	delete(s.attempts, identifier)
	return nil
}

// events

type capturedEvents struct {
	registered  []domain.IdentityRegisteredEvent
	passwords   []domain.PasswordChangedEvent
	sessions    []domain.SessionRevokedEvent
	invitations []domain.InvitationRedeemedEvent
	roles       []domain.RolesChangedEvent
}

func (e *capturedEvents) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	e.registered = append(e.registered, event)
	return nil
}

func (e *capturedEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.passwords = append(e.passwords, event)
	return nil
}

func (e *capturedEvents) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	e.sessions = append(e.sessions, event)
	return nil
}

func (e *capturedEvents) PublishInvitationRedeemed(_ context.Context, event domain.InvitationRedeemedEvent) error {
	e.invitations = append(e.invitations, event)
	return nil
}

func (e *capturedEvents) PublishRolesChanged(_ context.Context, event domain.RolesChangedEvent) error {
	e.roles = append(e.roles, event)
	return nil
}

// crypto stubs

type stubHasher struct{}

func (stubHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (stubHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

type stubPolicy struct {
	err error
}

func (p stubPolicy) Validate(string, ...string) error { return p.err }

type capturedEmails struct {
	messages []port.EmailMessage
}

func (e *capturedEmails) Send(_ context.Context, msg port.EmailMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

func testLogger() *zap.Logger { return zap.NewNop() }
