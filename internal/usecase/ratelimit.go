package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
)

const (
	loginRateLimitScope         = "login"
	otpSendRateLimitScope       = "otp_send"
	passwordResetRateLimitScope = "password_reset"
)

// LoginRateLimiter enforces the failed-attempt lockout against the user row.
// The counter lives on the user record so concurrent increments go through a
// single atomic UPDATE rather than a read-modify-write cycle.
type LoginRateLimiter struct {
	users             port.UserRepository
	maxFailedAttempts int
	lockoutWindow     time.Duration
	logger            *zap.Logger
	now               func() time.Time
}

// NewLoginRateLimiter constructs a limiter from the auth policy settings.
func NewLoginRateLimiter(cfg config.AuthSettings, users port.UserRepository, logger *zap.Logger) *LoginRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LoginRateLimiter{
		users:             users,
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutWindow:     cfg.LockoutWindow,
		logger:            logger,
		now:               time.Now,
	}
}

// WithClock overrides the limiter clock for deterministic tests.
func (l *LoginRateLimiter) WithClock(now func() time.Time) *LoginRateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// CheckAdmission rejects the attempt while the lockout window is open. Once
// the window elapses the stale counter is reset lazily so the next check
// starts clean.
func (l *LoginRateLimiter) CheckAdmission(ctx context.Context, user *domain.User) error {
	if user == nil {
		return ErrUserNotFound
	}

	now := l.now().UTC()
	if user.LockedOut(now, l.maxFailedAttempts, l.lockoutWindow) {
		retryAfter := l.lockoutWindow
		if user.AttemptsUpdatedAt != nil {
			retryAfter = l.lockoutWindow - now.Sub(*user.AttemptsUpdatedAt)
		}
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitExceededError{Scope: loginRateLimitScope, RetryAfter: retryAfter}
	}

	if l.maxFailedAttempts > 0 && user.FailedLoginAttempts >= l.maxFailedAttempts {
		if err := l.users.ResetFailedAttempts(ctx, user.ID, now); err != nil {
			return fmt.Errorf("reset stale attempt counter: %w", err)
		}
		user.FailedLoginAttempts = 0
	}

	return nil
}

// RecordFailure bumps the failed-attempt counter and returns the new total.
func (l *LoginRateLimiter) RecordFailure(ctx context.Context, userID string) (int, error) {
	attempts, err := l.users.IncrementFailedAttempts(ctx, userID, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return attempts, nil
}

// Reset zeroes the failed-attempt counter after a successful authentication.
func (l *LoginRateLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.users.ResetFailedAttempts(ctx, userID, l.now().UTC()); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

// DeliveryThrottle enforces a sliding-window limit on endpoints that trigger
// outbound delivery (OTP send, reset links). Store failures degrade to
// allowing the request; the throttle protects delivery channels, it is not an
// authentication control.
type DeliveryThrottle struct {
	store  port.AttemptStore
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewDeliveryThrottle constructs a throttle over the sliding-window store.
func NewDeliveryThrottle(store port.AttemptStore, window time.Duration, logger *zap.Logger) *DeliveryThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryThrottle{
		store:  store,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the throttle clock for deterministic tests.
func (t *DeliveryThrottle) WithClock(now func() time.Time) *DeliveryThrottle {
	if now != nil {
		t.now = now
	}
	return t
}

// Allow admits the request when fewer than maxAttempts occurred inside the
// window, recording the attempt as a side effect. Identifiers are hashed
// before use as store keys so raw contact values never reach Redis.
func (t *DeliveryThrottle) Allow(ctx context.Context, scope, identifier string, maxAttempts int) error {
	if t.store == nil || maxAttempts <= 0 || t.window <= 0 {
		return nil
	}

	now := t.now().UTC()
	key := fmt.Sprintf("%s:%s", scope, security.HashToken(identifier))

	if err := t.store.TrimWindow(ctx, key, t.window, now); err != nil {
		t.logger.Warn("trim throttle window failed", zap.String("scope", scope), zap.Error(err))
	}

	count, err := t.store.CountAttempts(ctx, key, t.window, now)
	if err != nil {
		t.logger.Warn("count throttle attempts failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= maxAttempts {
		retryAfter := t.window
		if oldest, ok, err := t.store.OldestAttempt(ctx, key, t.window, now); err != nil {
			t.logger.Warn("resolve oldest attempt failed", zap.String("scope", scope), zap.Error(err))
		} else if ok {
			retryAfter = t.window - now.Sub(oldest)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := t.store.RecordAttempt(ctx, key, now); err != nil {
		t.logger.Warn("record throttle attempt failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}
