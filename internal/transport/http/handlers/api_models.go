package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Alfahan/sso-sub000/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// PasswordLoginRequest defines the payload for the password login endpoint.
type PasswordLoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// PhoneLoginRequest starts a phone login by requesting an OTP.
type PhoneLoginRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// NIKLoginRequest defines the enterprise login payload.
type NIKLoginRequest struct {
	NIK      string `json:"nik" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// OTPVerifyRequest completes a pending OTP challenge.
type OTPVerifyRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// CodeExchangeRequest swaps an authorization code for tokens.
type CodeExchangeRequest struct {
	Code string `json:"code" binding:"required"`
}

// RefreshRequest rotates a token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LoginStepResponse reports the next step of a login flow. Exactly one of the
// optional blocks is present depending on the step.
type LoginStepResponse struct {
	Step      string     `json:"step"`
	Code      string     `json:"code,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	OTP       *OTPInfo   `json:"otp,omitempty"`
}

// OTPInfo describes an issued OTP challenge without exposing the code.
type OTPInfo struct {
	ChallengeID string    `json:"challenge_id"`
	Delivery    []string  `json:"delivery"`
	Destination string    `json:"destination,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenResponse contains an issued or rotated token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	SessionID    string `json:"session_id"`
}

// SessionIntrospection is returned when an access token verifies.
type SessionIntrospection struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	APIKeyID  string    `json:"api_key_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"omitempty"`
	Password string `json:"password" binding:"required,min=10"`
}

// RegistrationResponse contains the created account summary.
type RegistrationResponse struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Status   string  `json:"status"`
}

// ResetRequestPayload starts a password reset.
type ResetRequestPayload struct {
	Identifier string `json:"identifier" binding:"required"`
}

// ResetRequestResponse reports where the reset link went. Unknown accounts
// receive the same shape with a synthetic request id, so the endpoint never
// confirms whether an identifier exists.
type ResetRequestResponse struct {
	Message     string     `json:"message"`
	RequestID   string     `json:"request_id"`
	Destination string     `json:"destination,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ResetConfirmRequest completes a password reset.
type ResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=10"`
}

// ResetConfirmResponse summarizes a completed reset.
type ResetConfirmResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newLoginStepResponse(result *usecase.LoginResult) LoginStepResponse {
	resp := LoginStepResponse{Step: string(result.Step)}

	switch result.Step {
	case usecase.LoginStepCodeIssued:
		resp.Code = result.Code
		expires := result.CodeExpiresAt
		resp.ExpiresAt = &expires
	case usecase.LoginStepOTPRequired:
		if result.OTP != nil {
			resp.OTP = &OTPInfo{
				ChallengeID: result.OTP.ChallengeID,
				Delivery:    result.OTP.Delivery,
				Destination: result.OTP.MaskedTarget,
				ExpiresAt:   result.OTP.ExpiresAt,
			}
		}
	}

	return resp
}

func newTokenResponse(result *usecase.ExchangeResult) TokenResponse {
	return TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		SessionID:    result.SessionID,
	}
}
