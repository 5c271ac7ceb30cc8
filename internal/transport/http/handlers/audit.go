package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// AuditHandler exposes the audit trail to platform administrators.
type AuditHandler struct {
	audit  *usecase.AuditService
	policy *usecase.PolicyService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *usecase.AuditService, policy *usecase.PolicyService) *AuditHandler {
	return &AuditHandler{audit: audit, policy: policy}
}

// RegisterRoutes binds audit endpoints under the authenticated group.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit/events", h.Query)
	r.GET("/audit/report", h.ComplianceReport)
}

// Query returns audit events matching the query string filters.
func (h *AuditHandler) Query(c *gin.Context) {
	if !h.requireSuperAdmin(c) {
		return
	}

	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	events, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "query audit trail failed"))
		return
	}

	responses := make([]AuditEventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, newAuditEventResponse(event))
	}

	c.JSON(http.StatusOK, gin.H{"events": responses})
}

// ComplianceReport aggregates the audit trail over a time range.
func (h *AuditHandler) ComplianceReport(c *gin.Context) {
	if !h.requireSuperAdmin(c) {
		return
	}

	from, okFrom := parseTimeParam(c, "from")
	to, okTo := parseTimeParam(c, "to")
	if !okFrom || !okTo {
		return
	}
	if from.IsZero() || to.IsZero() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from and to are required"))
		return
	}

	report, err := h.audit.ComplianceReport(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid report range"))
		return
	}

	buckets := make([]gin.H, 0, len(report.Buckets))
	for _, bucket := range report.Buckets {
		buckets = append(buckets, gin.H{
			"category": bucket.Category,
			"severity": bucket.Severity,
			"result":   bucket.Result,
			"count":    bucket.Count,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    report.From,
		"to":      report.To,
		"total":   report.Total,
		"buckets": buckets,
	})
}

func (h *AuditHandler) parseFilter(c *gin.Context) (domain.AuditFilter, bool) {
	var filter domain.AuditFilter

	if raw := c.Query("actor_id"); raw != "" {
		filter.ActorID = &raw
	}
	if raw := c.Query("category"); raw != "" {
		category := domain.AuditCategory(raw)
		filter.Category = &category
	}
	if raw := c.Query("severity"); raw != "" {
		severity := domain.AuditSeverity(raw)
		filter.Severity = &severity
	}

	from, ok := parseTimeParam(c, "from")
	if !ok {
		return filter, false
	}
	if !from.IsZero() {
		filter.From = &from
	}

	to, ok := parseTimeParam(c, "to")
	if !ok {
		return filter, false
	}
	if !to.IsZero() {
		filter.To = &to
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit"))
			return filter, false
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid offset"))
			return filter, false
		}
		filter.Offset = offset
	}

	return filter, true
}

func (h *AuditHandler) requireSuperAdmin(c *gin.Context) bool {
	isSuper, err := h.policy.IsSuperAdmin(c.Request.Context(), middleware.IdentityID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization failed"))
		return false
	}
	if !isSuper {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "permission denied"))
		return false
	}
	return true
}

func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid "+name+" timestamp"))
		return time.Time{}, false
	}
	return parsed, true
}
