package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// InvitationHandler manages organization invitations.
type InvitationHandler struct {
	invitations *usecase.InvitationService
	policy      *usecase.PolicyService
	audit       *usecase.AuditService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *usecase.InvitationService, policy *usecase.PolicyService, audit *usecase.AuditService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, policy: policy, audit: audit}
}

// RegisterRoutes binds invitation endpoints under the authenticated group.
func (h *InvitationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/organizations/:org_id/invitations", h.Create)
	r.POST("/invitations/accept", h.Accept)
	r.DELETE("/invitations/:id", h.Revoke)
	r.POST("/invitations/:id/resend", h.Resend)
}

// Create issues a single-use invitation into an organization.
func (h *InvitationHandler) Create(c *gin.Context) {
	orgID := c.Param("org_id")

	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	actorID := middleware.IdentityID(c)
	if !h.authorize(c, actorID, orgID, "create") {
		return
	}

	invitation, err := h.invitations.Create(c.Request.Context(), req.Email, orgID, req.Role, actorID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrOrganizationNotFound, Status: http.StatusNotFound, Message: "organization not found"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusUnprocessableEntity, Message: "unknown role"},
			{Err: usecase.ErrInvitationConflict, Status: http.StatusConflict, Message: "an active membership or invitation already exists"},
		}, http.StatusInternalServerError, "create invitation failed")
		return
	}

	h.audit.LogAdminAction(c.Request.Context(), actorID, "invitation_created", "invitation", invitation.ID, map[string]any{
		"organization_id": orgID,
		"role":            req.Role,
	})

	c.JSON(http.StatusCreated, newInvitationResponse(*invitation))
}

// Accept redeems an invitation token for the authenticated identity.
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	membership, err := h.invitations.Redeem(c.Request.Context(), req.Token, middleware.IdentityID(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvitationNotFound, Status: http.StatusNotFound, Message: "invitation not found"},
			{Err: usecase.ErrInvitationExpired, Status: http.StatusGone, Message: "invitation expired"},
			{Err: usecase.ErrInvitationUsed, Status: http.StatusGone, Message: "invitation already used"},
		}, http.StatusInternalServerError, "accept invitation failed")
		return
	}

	c.JSON(http.StatusOK, MembershipResponse{
		OrganizationID: membership.OrganizationID,
		Role:           membership.RoleName,
		JoinedAt:       membership.JoinedAt,
	})
}

// Revoke withdraws a pending invitation.
func (h *InvitationHandler) Revoke(c *gin.Context) {
	invitation, ok := h.loadAuthorized(c, c.Param("id"), "revoke")
	if !ok {
		return
	}

	if err := h.invitations.Revoke(c.Request.Context(), invitation.ID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvitationNotFound, Status: http.StatusNotFound, Message: "invitation not found"},
			{Err: usecase.ErrInvitationUsed, Status: http.StatusGone, Message: "invitation already used"},
		}, http.StatusInternalServerError, "revoke invitation failed")
		return
	}

	h.audit.LogAdminAction(c.Request.Context(), middleware.IdentityID(c), "invitation_revoked", "invitation", invitation.ID, nil)
	c.JSON(http.StatusOK, MessageResponse{Message: "invitation revoked"})
}

// Resend re-delivers the invitation email without rotating the token.
func (h *InvitationHandler) Resend(c *gin.Context) {
	invitation, ok := h.loadAuthorized(c, c.Param("id"), "create")
	if !ok {
		return
	}

	if err := h.invitations.Resend(c.Request.Context(), invitation.ID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvitationNotFound, Status: http.StatusNotFound, Message: "invitation not found"},
			{Err: usecase.ErrInvitationUsed, Status: http.StatusGone, Message: "invitation already used"},
			{Err: usecase.ErrInvitationExpired, Status: http.StatusGone, Message: "invitation expired"},
		}, http.StatusInternalServerError, "resend invitation failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "invitation resent"})
}

func (h *InvitationHandler) loadAuthorized(c *gin.Context, invitationID, action string) (*domain.Invitation, bool) {
	invitation, err := h.invitations.Get(c.Request.Context(), invitationID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvitationNotFound, Status: http.StatusNotFound, Message: "invitation not found"},
		}, http.StatusInternalServerError, "lookup invitation failed")
		return nil, false
	}

	if !h.authorize(c, middleware.IdentityID(c), invitation.OrganizationID, action) {
		return nil, false
	}
	return invitation, true
}

func (h *InvitationHandler) authorize(c *gin.Context, actorID, orgID, action string) bool {
	decision, err := h.policy.Authorize(c.Request.Context(), actorID, "invitation", action, &orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization failed"))
		return false
	}
	if !decision.Allowed {
		h.audit.LogPermissionDenied(c.Request.Context(), actorID, "invitation", action, decision.Reason)
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "permission denied"))
		return false
	}
	return true
}
