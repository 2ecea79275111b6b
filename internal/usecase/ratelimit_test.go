package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

func testAuthSettings() config.AuthSettings {
	return config.AuthSettings{
		MaxFailedAttempts: 5,
		LockoutWindow:     15 * time.Minute,
		OTPTTL:            time.Minute,
		OTPEnterpriseTTL:  10 * time.Minute,
		OTPLength:         6,
		CodeTTL:           time.Hour,
		ResetTokenTTL:     2 * time.Minute,
		AnomalyPolicy:     config.AnomalyPolicyReject,
	}
}

func TestLoginRateLimiterLocksAfterMaxFailures(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	updated := now.Add(-5 * time.Minute)

	user := &domain.User{
		ID:                  "user-1",
		Status:              domain.UserStatusActive,
		FailedLoginAttempts: 5,
		AttemptsUpdatedAt:   &updated,
	}

	limiter := NewLoginRateLimiter(testAuthSettings(), newUserRepoMock(user), nil).WithClock(fixedClock(now))

	err := limiter.CheckAdmission(context.Background(), user)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var rle *RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitExceededError, got %T", err)
	}
	if rle.RetryAfter != 10*time.Minute {
		t.Fatalf("expected 10m retry-after, got %s", rle.RetryAfter)
	}
}

func TestLoginRateLimiterResetsStaleCounter(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	updated := now.Add(-20 * time.Minute)

	user := &domain.User{
		ID:                  "user-1",
		Status:              domain.UserStatusActive,
		FailedLoginAttempts: 5,
		AttemptsUpdatedAt:   &updated,
	}

	users := newUserRepoMock(user)
	limiter := NewLoginRateLimiter(testAuthSettings(), users, nil).WithClock(fixedClock(now))

	if err := limiter.CheckAdmission(context.Background(), user); err != nil {
		t.Fatalf("expected admission after window elapsed, got %v", err)
	}
	if user.FailedLoginAttempts != 0 {
		t.Fatalf("expected in-memory counter reset, got %d", user.FailedLoginAttempts)
	}
	if stored := users.get("user-1"); stored.FailedLoginAttempts != 0 {
		t.Fatalf("expected stored counter reset, got %d", stored.FailedLoginAttempts)
	}
}

func TestLoginRateLimiterAdmitsBelowThreshold(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	updated := now.Add(-time.Minute)

	user := &domain.User{
		ID:                  "user-1",
		Status:              domain.UserStatusActive,
		FailedLoginAttempts: 4,
		AttemptsUpdatedAt:   &updated,
	}

	limiter := NewLoginRateLimiter(testAuthSettings(), newUserRepoMock(user), nil).WithClock(fixedClock(now))

	if err := limiter.CheckAdmission(context.Background(), user); err != nil {
		t.Fatalf("expected admission below threshold, got %v", err)
	}
}

func TestDeliveryThrottleBlocksAfterLimit(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	store := newAttemptStoreMock()
	throttle := NewDeliveryThrottle(store, time.Hour, nil).WithClock(fixedClock(now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := throttle.Allow(ctx, "password_reset", "ayu@example.com", 3); err != nil {
			t.Fatalf("attempt %d should be admitted: %v", i+1, err)
		}
	}

	err := throttle.Allow(ctx, "password_reset", "ayu@example.com", 3)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var rle *RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitExceededError, got %T", err)
	}
	if rle.Scope != "password_reset" {
		t.Fatalf("unexpected scope %q", rle.Scope)
	}
	if rle.RetryAfter != time.Hour {
		t.Fatalf("expected full window retry-after with same-instant attempts, got %s", rle.RetryAfter)
	}
}

func TestDeliveryThrottleIsolatesIdentifiers(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	store := newAttemptStoreMock()
	throttle := NewDeliveryThrottle(store, time.Hour, nil).WithClock(fixedClock(now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := throttle.Allow(ctx, "otp_send", "user-1", 3); err != nil {
			t.Fatalf("attempt %d should be admitted: %v", i+1, err)
		}
	}

	if err := throttle.Allow(ctx, "otp_send", "user-2", 3); err != nil {
		t.Fatalf("other identifier should be admitted: %v", err)
	}
}
