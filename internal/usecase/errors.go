package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

var (
	// ErrUserNotFound indicates no user matched the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates the supplied credential failed verification.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked indicates the account status does not allow authentication.
	ErrAccountBlocked = errors.New("account is not active")
	// ErrAPIKeyInvalid indicates the calling client could not be resolved.
	ErrAPIKeyInvalid = errors.New("api key invalid")
	// ErrRateLimited indicates an admission or delivery throttle rejected the request.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrOTPAlreadyActive indicates a live challenge already exists for the user.
	ErrOTPAlreadyActive = errors.New("otp challenge already active")
	// ErrOTPInvalid indicates the supplied code does not match the active challenge.
	ErrOTPInvalid = errors.New("otp code invalid")
	// ErrOTPExpired indicates the active challenge expired before verification.
	ErrOTPExpired = errors.New("otp code expired")
	// ErrCodeInvalid indicates the authorization code is unknown or already exchanged.
	ErrCodeInvalid = errors.New("authorization code invalid")
	// ErrCodeExpired indicates the authorization code expired before exchange.
	ErrCodeExpired = errors.New("authorization code expired")
	// ErrSessionInvalid indicates the token does not map to a live session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrTokenExpired indicates the access token passed its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrAnomalyDetected indicates the request fingerprint deviates from the last login.
	ErrAnomalyDetected = errors.New("login anomaly detected")
	// ErrResetTokenInvalid indicates the reset token is unknown or already used.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrResetTokenExpired indicates the reset token expired before consumption.
	ErrResetTokenExpired = errors.New("password reset token expired")
	// ErrDirectoryUnavailable indicates the enterprise directory could not be reached.
	ErrDirectoryUnavailable = errors.New("employee directory unavailable")
	// ErrIdentifierTaken indicates a registration identifier is already in use.
	ErrIdentifierTaken = errors.New("identifier already registered")
)

// RateLimitExceededError carries the throttle scope and the wait until the
// window reopens. Matches ErrRateLimited via errors.Is.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

// OTPAlreadyActiveError reports the remaining wait before a new challenge can
// be issued. Matches ErrOTPAlreadyActive via errors.Is.
type OTPAlreadyActiveError struct {
	RetryAfter time.Duration
}

func (e *OTPAlreadyActiveError) Error() string {
	return fmt.Sprintf("otp challenge already active, retry after %s", e.RetryAfter)
}

func (e *OTPAlreadyActiveError) Is(target error) bool {
	return target == ErrOTPAlreadyActive
}

// AnomalyError lists the fingerprint dimensions that deviated from the most
// recent login. Matches ErrAnomalyDetected via errors.Is.
type AnomalyError struct {
	Kinds []domain.AnomalyKind
}

func (e *AnomalyError) Error() string {
	labels := make([]string, len(e.Kinds))
	for i, kind := range e.Kinds {
		labels[i] = string(kind)
	}
	return fmt.Sprintf("login anomaly detected: %s", strings.Join(labels, ","))
}

func (e *AnomalyError) Is(target error) bool {
	return target == ErrAnomalyDetected
}
