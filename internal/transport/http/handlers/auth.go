package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/infra/telemetry"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// AuthHandler exposes registration, login, refresh, and logout endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	password *usecase.PasswordService
	metrics  *telemetry.Metrics
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, password *usecase.PasswordService, metrics *telemetry.Metrics) *AuthHandler {
	return &AuthHandler{auth: auth, password: password, metrics: metrics}
}

// RegisterRoutes binds the public authentication endpoints.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/token/refresh", h.Refresh)
	r.POST("/password/forgot", h.ForgotPassword)
	r.POST("/password/reset", h.ResetPassword)
}

// RegisterProtectedRoutes binds endpoints that require authentication.
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/logout", h.Logout)
	r.POST("/logout/all", h.LogoutAll)
	r.POST("/password/change", h.ChangePassword)
}

// Register handles account signup.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	identity, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
		}, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": identity.ID, "email": identity.Email})
}

// Login handles the credential flow, including the MFA gate.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		MFACode:    req.MFACode,
		BackupCode: req.BackupCode,
		RememberMe: req.RememberMe,
		Device:     deviceInfo(c, req.DeviceID),
	})
	if err != nil {
		if errors.Is(err, usecase.ErrMFARequired) && result != nil {
			h.countLogin("mfa_required")
			c.JSON(http.StatusUnauthorized, MFARequiredResponse{
				MFARequired: true,
				Method:      string(result.MFAMethod),
			})
			return
		}

		h.countLogin("failure")
		if errors.Is(err, usecase.ErrRateLimited) {
			h.countRateLimited()
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account locked"},
			{Err: usecase.ErrAccountInactive, Status: http.StatusForbidden, Message: "account is not active"},
			{Err: usecase.ErrMFAChallengeFailed, Status: http.StatusUnauthorized, Message: "mfa verification failed"},
			{Err: usecase.ErrMFAAttemptsExhausted, Status: http.StatusUnauthorized, Message: "mfa attempts exhausted"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	h.countLogin("success")
	if h.metrics != nil {
		h.metrics.TokensIssued.WithLabelValues("access").Inc()
		h.metrics.TokensIssued.WithLabelValues("refresh").Inc()
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:     result.AccessToken,
		TokenType:       "Bearer",
		ExpiresAt:       result.AccessExpiresAt,
		RefreshToken:    result.RefreshToken,
		RememberMeToken: result.RememberMeToken,
		SessionID:       result.Session.ID,
	})
}

// Refresh rotates a refresh token and issues a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, deviceInfo(c, ""))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "refresh token revoked"},
			{Err: usecase.ErrRotationIncomplete, Status: http.StatusConflict, Message: "token rotation incomplete, re-authenticate"},
			{Err: usecase.ErrSessionExpired, Status: http.StatusUnauthorized, Message: "session expired"},
			{Err: usecase.ErrSessionRevoked, Status: http.StatusUnauthorized, Message: "session revoked"},
			{Err: usecase.ErrAccountInactive, Status: http.StatusForbidden, Message: "account is not active"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	if h.metrics != nil {
		h.metrics.TokensIssued.WithLabelValues("access").Inc()
		h.metrics.TokensIssued.WithLabelValues("refresh").Inc()
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  result.AccessToken,
		TokenType:    "Bearer",
		ExpiresAt:    result.AccessExpiresAt,
		RefreshToken: result.RefreshToken,
	})
}

// Logout revokes the current session and the presented refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	err := h.auth.Logout(c.Request.Context(), middleware.SessionID(c), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll revokes every session and token of the principal.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	err := h.auth.LogoutEverywhere(c.Request.Context(), middleware.IdentityID(c), "logout_all")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out everywhere"})
}

// ChangePassword replaces the principal's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	err := h.password.Change(c.Request.Context(), middleware.IdentityID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
		}, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

// ForgotPassword starts the reset flow. The response never reveals whether
// the email maps to an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if err := h.password.RequestReset(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "reset request failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the email exists, a reset link has been sent"})
}

// ResetPassword completes the reset flow with a token from the email.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	err := h.password.Reset(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid reset token"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "reset token expired"},
			{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "reset token already used"},
		}, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

func (h *AuthHandler) countLogin(result string) {
	if h.metrics != nil {
		h.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}

func (h *AuthHandler) countRateLimited() {
	if h.metrics != nil {
		h.metrics.RateLimitRejections.WithLabelValues("login").Inc()
	}
}

func deviceInfo(c *gin.Context, deviceID string) usecase.DeviceInfo {
	info := usecase.DeviceInfo{}

	if ip := c.ClientIP(); ip != "" {
		info.Origin = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		info.UserAgent = &ua
	}
	if deviceID != "" {
		info.DeviceID = &deviceID
	}

	return info
}
