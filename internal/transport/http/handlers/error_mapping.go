package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic response. Rate-limit errors additionally carry a
// Retry-After header; password policy violations surface their own message.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var rateLimited *usecase.RateLimitExceededError
	if errors.As(err, &rateLimited) {
		seconds := int(rateLimited.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", seconds))
		c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many attempts, slow down"))
		return
	}

	var otpActive *usecase.OTPAlreadyActiveError
	if errors.As(err, &otpActive) {
		seconds := int(otpActive.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", seconds))
		c.JSON(http.StatusConflict, NewErrorResponse(c, "a verification code is already active"))
		return
	}

	var validation *security.PasswordValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Error()))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// authErrorCases covers the shared failure modes of login-family endpoints.
// Messages stay deliberately vague: credential, OTP, and code failures must
// not reveal which part was wrong or whether the account exists.
func authErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrAccountBlocked, Status: http.StatusUnauthorized, Message: "account is not active"},
		{Err: usecase.ErrAnomalyDetected, Status: http.StatusUnauthorized, Message: "login rejected"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrOTPInvalid, Status: http.StatusUnauthorized, Message: "verification code invalid"},
		{Err: usecase.ErrOTPExpired, Status: http.StatusUnauthorized, Message: "verification code expired"},
		{Err: usecase.ErrOTPContactMissing, Status: http.StatusUnprocessableEntity, Message: "no delivery channel available"},
		{Err: usecase.ErrCodeInvalid, Status: http.StatusUnauthorized, Message: "authorization code invalid"},
		{Err: usecase.ErrCodeExpired, Status: http.StatusUnauthorized, Message: "authorization code expired"},
		{Err: usecase.ErrSessionInvalid, Status: http.StatusUnauthorized, Message: "session invalid"},
		{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"},
		{Err: usecase.ErrAPIKeyInvalid, Status: http.StatusUnauthorized, Message: "client key invalid"},
		{Err: usecase.ErrDirectoryUnavailable, Status: http.StatusBadGateway, Message: "enterprise directory unavailable"},
	}
}
