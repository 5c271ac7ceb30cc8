package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
	"github.com/jash90/accounting-platform-sub001/internal/infra/telemetry"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/handlers"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth        *usecase.AuthService
	Password    *usecase.PasswordService
	Tokens      *usecase.TokenService
	Sessions    *usecase.SessionService
	MFA         *usecase.MFAService
	RBAC        *usecase.RBACService
	Policy      *usecase.PolicyService
	Invitations *usecase.InvitationService
	Audit       *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Metrics    *telemetry.Metrics
	Services   ServiceSet
	JWTManager *security.JWTManager
	Database   DatabaseChecker
	Cache      CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Tokens)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwksHandler := handlers.NewJWKSHandler(deps.JWTManager)
	r.GET("/.well-known/jwks.json", jwksHandler.Keys)

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Password, deps.Metrics)

		authGroup := api.Group("/auth")
		authHandler.RegisterRoutes(authGroup)

		protected := api.Group("")
		protected.Use(authMiddleware)

		protectedAuth := protected.Group("/auth")
		authHandler.RegisterProtectedRoutes(protectedAuth)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(protected)

		mfaHandler := handlers.NewMFAHandler(deps.Services.MFA)
		mfaHandler.RegisterRoutes(protected)

		invitationHandler := handlers.NewInvitationHandler(deps.Services.Invitations, deps.Services.Policy, deps.Services.Audit)
		invitationHandler.RegisterRoutes(protected)

		rbacHandler := handlers.NewRBACHandler(deps.Services.RBAC, deps.Services.Policy, deps.Services.Audit)
		rbacHandler.RegisterRoutes(protected)

		auditHandler := handlers.NewAuditHandler(deps.Services.Audit, deps.Services.Policy)
		auditHandler.RegisterRoutes(protected)
	}

	return r
}
