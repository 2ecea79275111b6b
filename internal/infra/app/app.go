package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/database"
	"github.com/Alfahan/sso-sub000/internal/infra/directory"
	"github.com/Alfahan/sso-sub000/internal/infra/fingerprint"
	kafkainfra "github.com/Alfahan/sso-sub000/internal/infra/kafka"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
	"github.com/Alfahan/sso-sub000/internal/infra/notifier"
	redisinfra "github.com/Alfahan/sso-sub000/internal/infra/redis"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/infra/telemetry"
	postgresrepo "github.com/Alfahan/sso-sub000/internal/repository/postgres"
	redisrepo "github.com/Alfahan/sso-sub000/internal/repository/redis"
	"github.com/Alfahan/sso-sub000/internal/transport/http/middleware"
	"github.com/Alfahan/sso-sub000/internal/transport/http/routes"
	"github.com/Alfahan/sso-sub000/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
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

	// Releases both backends when a later constructor fails.
	closeBackends := func() {
		_ = redisClient.Close()
		pool.Close()
	}

	cipher, err := security.NewAESFieldCipher(cfg.Cipher.Key, cfg.Cipher.IndexKey)
	if err != nil {
		closeBackends()
		return nil, fmt.Errorf("init field cipher: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		closeBackends()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	signingKid := ""
	if named, ok := keyProvider.(interface{ SigningKeyID() string }); ok {
		signingKid = named.SigningKeyID()
	}

	repos := postgresrepo.NewRepositories(pool, cipher)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Hour
	}
	attemptStore := redisrepo.NewAttemptRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.AttemptPrefix,
		TTL:       rateLimitWindow * 2,
	})

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var geo port.GeoResolver = fingerprint.NoopGeoResolver{}
	if cfg.GeoIP.DatabasePath != "" {
		resolver, err := fingerprint.NewGeoIPResolver(cfg.GeoIP.DatabasePath)
		if err != nil {
			log.Warn("geoip database unavailable, country resolution disabled", zap.Error(err))
		} else {
			geo = resolver
		}
	}
	fingerprints := fingerprint.NewBuilder(geo, fingerprint.NewUAParser(), log)

	notifierService, err := notifier.New(cfg.Notifier, log)
	if err != nil {
		closeBackends()
		return nil, fmt.Errorf("init notifier: %w", err)
	}

	directoryClient := directory.NewHTTPClient(cfg.Directory, log)

	passwordPolicy := security.NewPasswordPolicyWithRules(security.PasswordRules{
		MinLength:           cfg.Auth.PasswordMinLength,
		MinCharacterClasses: cfg.Auth.PasswordMinClasses,
		MinStrengthScore:    cfg.Auth.PasswordMinStrength,
	})
	issuer := cfg.App.Name

	limiter := usecase.NewLoginRateLimiter(cfg.Auth, repos.Users, log)
	throttle := usecase.NewDeliveryThrottle(attemptStore, rateLimitWindow, log)
	anomalies := usecase.NewAnomalyDetector(repos.AuthHistory, log)
	otpService := usecase.NewOTPService(cfg.Auth, cfg.RateLimit.OTPSendMaxAttempts, repos.Challenges, cipher, notifierService, throttle, log)
	codeService := usecase.NewCodeService(repos.Codes, cfg.Auth.CodeTTL, log)
	sessionService := usecase.NewSessionService(cfg.JWT, issuer, repos.Sessions, jwtManager, cipher, signingKid, log)

	loginService := usecase.NewLoginService(
		cfg.Auth,
		repos.Users,
		repos.APIKeys,
		limiter,
		anomalies,
		otpService,
		codeService,
		sessionService,
		repos.AuthHistory,
		directoryClient,
		eventPublisher,
		metrics,
		passwordPolicy,
		log,
	)

	registrationService := usecase.NewRegistrationService(repos.Users, passwordPolicy, eventPublisher, log)

	resetService := usecase.NewPasswordResetService(
		repos.Users,
		repos.ResetTokens,
		sessionService,
		repos.AuthHistory,
		throttle,
		cfg.RateLimit.PasswordResetMaxAttempts,
		jwtManager,
		signingKid,
		issuer,
		cipher,
		passwordPolicy,
		notifierService,
		eventPublisher,
		cfg.Auth.ResetTokenTTL,
		log,
	)

	rateLimiter := middleware.NewRateLimiter(attemptStore, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		closeBackends()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		JWTManager:   jwtManager,
		Fingerprints: fingerprints,
		RateLimiter:  rateLimiter,
		Metrics:      httpMetrics,
		Database:     pool,
		Cache:        redisClient,
		Services: routes.ServiceSet{
			Login:         loginService,
			Registration:  registrationService,
			PasswordReset: resetService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
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

	a.logger.Info("starting SSO API",
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
