package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/fingerprint"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/transport/http/handlers"
	"github.com/Alfahan/sso-sub000/internal/transport/http/middleware"
	"github.com/Alfahan/sso-sub000/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Login         *usecase.LoginService
	Registration  *usecase.RegistrationService
	PasswordReset *usecase.PasswordResetService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Services     ServiceSet
	JWTManager   *security.JWTManager
	Fingerprints *fingerprint.Builder
	RateLimiter  *middleware.RateLimiter
	Metrics      *middleware.HTTPMetrics
	Database     DatabaseChecker
	Cache        CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwksHandler := handlers.NewJWKSHandler(deps.JWTManager)
	r.GET("/.well-known/jwks.json", jwksHandler.Keys)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(middleware.RequireAPIKey(deps.Services.Login))
		if mw := buildLoginRateLimit(deps); mw != nil {
			authGroup.Use(mw)
		}

		authHandler := handlers.NewAuthHandler(deps.Services.Login, deps.Fingerprints)
		authHandler.RegisterRoutes(authGroup)

		userGroup := api.Group("/user")
		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration)
		registrationHandler.RegisterRoutes(userGroup)

		passwordGroup := api.Group("/password")
		if mw := buildResetRateLimit(deps); mw != nil {
			passwordGroup.Use(mw)
		}
		passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, deps.Fingerprints)
		passwordHandler.RegisterRoutes(passwordGroup)
	}

	return r
}

func buildLoginRateLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginIPMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.LoginIPWindow
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:   "auth_login_ip",
		Limit:  limit,
		Window: window,
	})
}

func buildResetRateLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.PasswordResetMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:   "password_reset_ip",
		Limit:  limit,
		Window: window,
	})
}
