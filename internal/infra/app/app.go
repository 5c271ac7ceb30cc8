package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	redisdriver "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/database"
	"github.com/jash90/accounting-platform-sub001/internal/infra/email"
	kafkainfra "github.com/jash90/accounting-platform-sub001/internal/infra/kafka"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
	redisinfra "github.com/jash90/accounting-platform-sub001/internal/infra/redis"
	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
	"github.com/jash90/accounting-platform-sub001/internal/infra/telemetry"
	postgresrepo "github.com/jash90/accounting-platform-sub001/internal/repository/postgres"
	redisrepo "github.com/jash90/accounting-platform-sub001/internal/repository/redis"
	"github.com/jash90/accounting-platform-sub001/internal/transport/http/routes"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// Application owns the process lifecycle: connections, services, and the
// HTTP server.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisdriver.Client
	tracer *telemetry.TracerProvider
	kafka  *kafkainfra.Producer
}

// New wires configuration into a runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracing, continuing without it", zap.Error(err))
		}
	}

	keyProvider, err := newKeyProvider(cfg, log)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	jwtManager, err := security.NewJWTManager(keyProvider)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	digester, err := security.NewDigester(cfg.JWT.TokenDigestKey)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token digester: %w", err)
	}

	sealer, err := security.NewSealer(cfg.JWT.TokenDigestKey)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token sealer: %w", err)
	}

	totpManager := security.NewTOTPManager(security.DefaultTOTPConfig(cfg.MFA.TOTPIssuer))
	passwordPolicy := security.NewPasswordPolicy(cfg.Password)

	repos := postgresrepo.NewRepositories(pool)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient, redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	challengeStore := redisrepo.NewChallengeRepository(redisClient, cfg.Redis.ChallengePrefix)

	var kafkaProducer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var emailSender port.EmailSender
	if cfg.Email.Region != "" {
		sender, err := email.NewSESSender(ctx, cfg.Email, log)
		if err != nil {
			log.Warn("failed to init ses sender, falling back to log sender", zap.Error(err))
			emailSender = email.NewLogSender(log)
		} else {
			emailSender = sender
		}
	} else {
		emailSender = email.NewLogSender(log)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	auditService := usecase.NewAuditService(repos.Audits, log)
	tokenService := usecase.NewTokenService(cfg, repos.Tokens, jwtManager)
	sessionService := usecase.NewSessionService(cfg, repos.Sessions, repos.Tokens, eventPublisher, log)
	guard := usecase.NewRateLimitGuard(cfg.RateLimit, rateLimitStore, repos.LoginAttempts, log)
	rbacService := usecase.NewRBACService(repos.Roles, repos.Permissions, repos.Assignments, eventPublisher, log)
	policyService := usecase.NewPolicyService(rbacService, repos.Organizations, repos.Roles, repos.Assignments)
	mfaService := usecase.NewMFAService(cfg.MFA, repos.MFA, challengeStore, repos.Identities, totpManager, emailSender, log)
	invitationService := usecase.NewInvitationService(
		cfg.Invitation,
		repos.Invitations,
		repos.Organizations,
		repos.Roles,
		emailSender,
		eventPublisher,
		hasher,
		digester,
		sealer,
		cfg.App.BaseURL,
		log,
	)
	passwordService := usecase.NewPasswordService(cfg, repos.Identities, tokenService, sessionService, hasher, passwordPolicy, emailSender, eventPublisher, auditService, log)
	authService := usecase.NewAuthService(cfg, repos.Identities, guard, tokenService, sessionService, mfaService, rbacService, hasher, passwordPolicy, auditService, eventPublisher, log)

	engine := routes.Register(routes.Dependencies{
		Config:     cfg,
		Logger:     log,
		Metrics:    metrics,
		JWTManager: jwtManager,
		Database:   pool,
		Cache:      redisChecker{client: redisClient},
		Services: routes.ServiceSet{
			Auth:        authService,
			Password:    passwordService,
			Tokens:      tokenService,
			Sessions:    sessionService,
			MFA:         mfaService,
			RBAC:        rbacService,
			Policy:      policyService,
			Invitations: invitationService,
			Audit:       auditService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
		kafka:  kafkaProducer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down cleanly.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if a.kafka != nil {
			_ = a.kafka.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// newKeyProvider picks signing material: a key directory when configured,
// otherwise an ephemeral in-memory keypair outside production.
func newKeyProvider(cfg *config.AppConfig, log *zap.Logger) (security.KeyProvider, error) {
	if cfg.JWT.KeyDirectory != "" {
		provider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory)
		if err != nil {
			return nil, fmt.Errorf("init key provider: %w", err)
		}
		return provider, nil
	}

	if cfg.App.Env == "production" {
		return nil, fmt.Errorf("jwt key directory is required in production")
	}

	log.Warn("no jwt key directory configured, generating ephemeral signing key")
	provider, err := security.NewEphemeralKeyProvider("v1")
	if err != nil {
		return nil, fmt.Errorf("init ephemeral key provider: %w", err)
	}
	return provider, nil
}

type redisChecker struct {
	client *redisdriver.Client
}

func (c redisChecker) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
