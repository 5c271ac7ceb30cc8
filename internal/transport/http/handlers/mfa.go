package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// MFAHandler manages enrollment and verification of second factors.
type MFAHandler struct {
	mfa *usecase.MFAService
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(mfa *usecase.MFAService) *MFAHandler {
	return &MFAHandler{mfa: mfa}
}

// RegisterRoutes binds MFA endpoints under the authenticated group.
func (h *MFAHandler) RegisterRoutes(r *gin.RouterGroup) {
	mfa := r.Group("/mfa")
	{
		mfa.POST("/totp/enroll", h.EnrollTOTP)
		mfa.POST("/totp/verify", h.VerifyTOTPEnrollment)
		mfa.POST("/challenge", h.StartChallenge)
		mfa.POST("/challenge/verify", h.VerifyChallenge)
		mfa.POST("/backup-codes/regenerate", h.RegenerateBackupCodes)
		mfa.DELETE("", h.Disable)
	}
}

// EnrollTOTP starts TOTP enrollment and returns the provisioning material once.
func (h *MFAHandler) EnrollTOTP(c *gin.Context) {
	result, err := h.mfa.EnrollTOTP(c.Request.Context(), middleware.IdentityID(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFAAlreadyEnrolled, Status: http.StatusConflict, Message: "totp already enrolled"},
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
		}, http.StatusInternalServerError, "enrollment failed")
		return
	}

	c.JSON(http.StatusOK, EnrollTOTPResponse{
		Secret:       result.Secret,
		ProvisionURI: result.ProvisionURI,
		BackupCodes:  result.BackupCodes,
	})
}

// VerifyTOTPEnrollment confirms the authenticator produces valid codes and
// activates the factor.
func (h *MFAHandler) VerifyTOTPEnrollment(c *gin.Context) {
	var req MFACodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	if err := h.mfa.VerifyTOTPEnrollment(c.Request.Context(), middleware.IdentityID(c), req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFANotEnrolled, Status: http.StatusNotFound, Message: "no pending enrollment"},
			{Err: usecase.ErrMFAChallengeFailed, Status: http.StatusUnprocessableEntity, Message: "invalid code"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "totp enabled"})
}

// StartChallenge sends a one-time code over a delivery channel.
func (h *MFAHandler) StartChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	method, ok := parseMFAMethod(req.Method)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown mfa method"))
		return
	}

	if err := h.mfa.StartChallenge(c.Request.Context(), middleware.IdentityID(c), method); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFANotEnrolled, Status: http.StatusNotFound, Message: "method not enrolled"},
		}, http.StatusInternalServerError, "challenge failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code sent"})
}

// VerifyChallenge answers a pending delivery challenge.
func (h *MFAHandler) VerifyChallenge(c *gin.Context) {
	var req ChallengeVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	method, ok := parseMFAMethod(req.Method)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown mfa method"))
		return
	}

	if err := h.mfa.VerifyChallenge(c.Request.Context(), middleware.IdentityID(c), method, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFAAttemptsExhausted, Status: http.StatusUnprocessableEntity, Message: "attempts exhausted, request a new code"},
			{Err: usecase.ErrMFAChallengeFailed, Status: http.StatusUnprocessableEntity, Message: "invalid code"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "challenge passed"})
}

// RegenerateBackupCodes replaces the recovery code set and returns the new one.
func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	codes, err := h.mfa.RegenerateBackupCodes(c.Request.Context(), middleware.IdentityID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "regeneration failed"))
		return
	}

	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Disable removes every enrolled factor and turns MFA off.
func (h *MFAHandler) Disable(c *gin.Context) {
	if err := h.mfa.Disable(c.Request.Context(), middleware.IdentityID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "disable failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "mfa disabled"})
}

func parseMFAMethod(raw string) (domain.MFAMethod, bool) {
	switch domain.MFAMethod(raw) {
	case domain.MFAMethodTOTP, domain.MFAMethodEmail, domain.MFAMethodSMS:
		return domain.MFAMethod(raw), true
	default:
		return "", false
	}
}
