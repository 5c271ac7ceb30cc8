package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
)

// ErrorResponse represents a generic error payload.
type ErrorResponse struct {
	Error      string `json:"error"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// NewErrorResponse creates an error response with the request identifier.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	requestID, _ := c.Value(logger.RequestIDKey{}).(string)
	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestID,
	}
}

func (e ErrorResponse) retryAfterHeader() string {
	return strconv.Itoa(e.RetryAfter)
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the signup payload.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest defines the login payload.
type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	MFACode    string `json:"mfa_code"`
	BackupCode string `json:"backup_code"`
	RememberMe bool   `json:"remember_me"`
	DeviceID   string `json:"device_id"`
}

// LoginResponse is the issued credential bundle.
type LoginResponse struct {
	AccessToken     string    `json:"access_token"`
	TokenType       string    `json:"token_type"`
	ExpiresAt       time.Time `json:"expires_at"`
	RefreshToken    string    `json:"refresh_token"`
	RememberMeToken string    `json:"remember_me_token,omitempty"`
	SessionID       string    `json:"session_id"`
}

// MFARequiredResponse signals that the password stage passed and a second
// factor is outstanding.
type MFARequiredResponse struct {
	MFARequired bool   `json:"mfa_required"`
	Method      string `json:"method"`
}

// RefreshRequest carries the opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest defines the authenticated password change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ForgotPasswordRequest starts the email reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest completes the email reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// SessionSummary is the device-management view of a session.
type SessionSummary struct {
	ID             string    `json:"id"`
	DeviceID       *string   `json:"device_id,omitempty"`
	DeviceLabel    *string   `json:"device_label,omitempty"`
	Origin         *string   `json:"origin,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

func newSessionSummary(session domain.Session, currentID string) SessionSummary {
	return SessionSummary{
		ID:             session.ID,
		DeviceID:       session.DeviceID,
		DeviceLabel:    session.DeviceLabel,
		Origin:         session.OriginLast,
		UserAgent:      session.UserAgent,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		ExpiresAt:      session.ExpiresAt,
		Current:        session.ID == currentID,
	}
}

// EnrollTOTPResponse returns provisioning material exactly once.
type EnrollTOTPResponse struct {
	Secret       string   `json:"secret"`
	ProvisionURI string   `json:"provision_uri"`
	BackupCodes  []string `json:"backup_codes"`
}

// MFACodeRequest carries a submitted one-time code.
type MFACodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ChallengeRequest starts a delivery-based MFA challenge.
type ChallengeRequest struct {
	Method string `json:"method" binding:"required"`
}

// ChallengeVerifyRequest answers a pending challenge.
type ChallengeVerifyRequest struct {
	Method string `json:"method" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// BackupCodesResponse returns a regenerated recovery code set.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// CreateInvitationRequest issues an organization invitation.
type CreateInvitationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// InvitationResponse is the issuer's view of an invitation.
type InvitationResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	OrganizationID string     `json:"organization_id"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
}

func newInvitationResponse(invitation domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:             invitation.ID,
		Email:          invitation.Email,
		OrganizationID: invitation.OrganizationID,
		Role:           invitation.RoleName,
		CreatedAt:      invitation.CreatedAt,
		ExpiresAt:      invitation.ExpiresAt,
		UsedAt:         invitation.UsedAt,
	}
}

// AcceptInvitationRequest redeems an invitation token.
type AcceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// MembershipResponse is returned after a successful redemption.
type MembershipResponse struct {
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// AssignRoleRequest binds a role to an identity.
type AssignRoleRequest struct {
	IdentityID     string  `json:"identity_id" binding:"required"`
	Role           string  `json:"role" binding:"required"`
	OrganizationID *string `json:"organization_id"`
}

// PermissionCheckRequest asks whether the principal may perform an action.
type PermissionCheckRequest struct {
	Resource       string  `json:"resource" binding:"required"`
	Action         string  `json:"action" binding:"required"`
	OrganizationID *string `json:"organization_id"`
}

// PermissionCheckResponse carries the decision and its reason.
type PermissionCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// AuditEventResponse is one audit trail entry.
type AuditEventResponse struct {
	ID           string         `json:"id"`
	ActorID      *string        `json:"actor_id,omitempty"`
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	Action       string         `json:"action"`
	Result       string         `json:"result"`
	OldValue     map[string]any `json:"old_value,omitempty"`
	NewValue     map[string]any `json:"new_value,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func newAuditEventResponse(event domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:           event.ID,
		ActorID:      event.ActorID,
		Category:     string(event.Category),
		Severity:     string(event.Severity),
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Action:       event.Action,
		Result:       string(event.Result),
		OldValue:     event.OldValue,
		NewValue:     event.NewValue,
		CreatedAt:    event.CreatedAt,
	}
}
