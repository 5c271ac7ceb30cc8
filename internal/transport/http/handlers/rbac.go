package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// RBACHandler exposes role assignment and permission checks.
type RBACHandler struct {
	rbac   *usecase.RBACService
	policy *usecase.PolicyService
	audit  *usecase.AuditService
}

// NewRBACHandler constructs an RBACHandler.
func NewRBACHandler(rbac *usecase.RBACService, policy *usecase.PolicyService, audit *usecase.AuditService) *RBACHandler {
	return &RBACHandler{rbac: rbac, policy: policy, audit: audit}
}

// RegisterRoutes binds RBAC endpoints under the authenticated group.
func (h *RBACHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/roles/assign", h.AssignRole)
	r.POST("/roles/remove", h.RemoveRole)
	r.POST("/permissions/check", h.CheckPermission)
	r.GET("/permissions", h.ListPermissions)
	r.GET("/organizations/:org_id/modules/:module/access", h.CheckModuleAccess)
}

// AssignRole binds a role to an identity, optionally scoped to an organization.
func (h *RBACHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	actorID := middleware.IdentityID(c)
	if !h.authorize(c, actorID, "role", "assign", req.OrganizationID) {
		return
	}

	if err := h.rbac.AssignRole(c.Request.Context(), req.IdentityID, req.Role, req.OrganizationID, &actorID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrRoleNotAssignable, Status: http.StatusUnprocessableEntity, Message: "role is not assignable"},
		}, http.StatusInternalServerError, "assign role failed")
		return
	}

	h.audit.LogAdminAction(c.Request.Context(), actorID, "role_assigned", "identity", req.IdentityID, map[string]any{
		"role":            req.Role,
		"organization_id": req.OrganizationID,
	})

	c.JSON(http.StatusOK, MessageResponse{Message: "role assigned"})
}

// RemoveRole unbinds a role from an identity within the given scope.
func (h *RBACHandler) RemoveRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	actorID := middleware.IdentityID(c)
	if !h.authorize(c, actorID, "role", "assign", req.OrganizationID) {
		return
	}

	if err := h.rbac.RemoveRole(c.Request.Context(), req.IdentityID, req.Role, req.OrganizationID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "remove role failed")
		return
	}

	h.audit.LogAdminAction(c.Request.Context(), actorID, "role_removed", "identity", req.IdentityID, map[string]any{
		"role":            req.Role,
		"organization_id": req.OrganizationID,
	})

	c.JSON(http.StatusOK, MessageResponse{Message: "role removed"})
}

// CheckPermission evaluates the caller's own access to a resource action.
func (h *RBACHandler) CheckPermission(c *gin.Context) {
	var req PermissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	decision, err := h.policy.Authorize(c.Request.Context(), middleware.IdentityID(c), req.Resource, req.Action, req.OrganizationID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrOrganizationNotFound, Status: http.StatusNotFound, Message: "organization not found"},
		}, http.StatusInternalServerError, "permission check failed")
		return
	}

	c.JSON(http.StatusOK, PermissionCheckResponse{Allowed: decision.Allowed, Reason: decision.Reason})
}

// ListPermissions returns the caller's effective permission names, optionally
// scoped to an organization via the org_id query parameter.
func (h *RBACHandler) ListPermissions(c *gin.Context) {
	var orgID *string
	if raw := c.Query("org_id"); raw != "" {
		orgID = &raw
	}

	set, err := h.rbac.ResolvePermissions(c.Request.Context(), middleware.IdentityID(c), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "resolve permissions failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"permissions": set.Names()})
}

// CheckModuleAccess evaluates the caller's access level inside an enabled
// organization module.
func (h *RBACHandler) CheckModuleAccess(c *gin.Context) {
	perm := domain.ModulePermission(c.DefaultQuery("permission", string(domain.ModulePermissionRead)))
	switch perm {
	case domain.ModulePermissionRead, domain.ModulePermissionWrite, domain.ModulePermissionDelete:
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown module permission"))
		return
	}

	decision, err := h.policy.CheckModuleAccess(c.Request.Context(), middleware.IdentityID(c), c.Param("org_id"), c.Param("module"), perm)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrOrganizationNotFound, Status: http.StatusNotFound, Message: "organization not found"},
			{Err: usecase.ErrModuleDisabled, Status: http.StatusForbidden, Message: "module not enabled"},
		}, http.StatusInternalServerError, "module access check failed")
		return
	}

	c.JSON(http.StatusOK, PermissionCheckResponse{Allowed: decision.Allowed, Reason: decision.Reason})
}

func (h *RBACHandler) authorize(c *gin.Context, actorID, resource, action string, orgID *string) bool {
	decision, err := h.policy.Authorize(c.Request.Context(), actorID, resource, action, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization failed"))
		return false
	}
	if !decision.Allowed {
		h.audit.LogPermissionDenied(c.Request.Context(), actorID, resource, action, decision.Reason)
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "permission denied"))
		return false
	}
	return true
}
