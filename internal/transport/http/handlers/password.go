package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Alfahan/sso-sub000/internal/infra/fingerprint"
	"github.com/Alfahan/sso-sub000/internal/usecase"
)

const resetAcceptedMessage = "If the account exists, instructions have been sent"

// PasswordHandler exposes the password reset lifecycle.
type PasswordHandler struct {
	resets       *usecase.PasswordResetService
	fingerprints *fingerprint.Builder
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(resets *usecase.PasswordResetService, fingerprints *fingerprint.Builder) *PasswordHandler {
	return &PasswordHandler{resets: resets, fingerprints: fingerprints}
}

// RegisterRoutes binds the password reset routes.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reset/request", h.requestReset)
	r.POST("/reset/confirm", h.confirmReset)
}

func (h *PasswordHandler) requestReset(c *gin.Context) {
	var req ResetRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	fp := h.fingerprints.Build(c.ClientIP(), c.GetHeader("User-Agent"))

	result, err := h.resets.Request(c.Request.Context(), req.Identifier, fp)
	if err != nil {
		// Unknown identifiers receive the same acknowledgement as real ones.
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusAccepted, ResetRequestResponse{
				Message:   resetAcceptedMessage,
				RequestID: uuid.NewString(),
			})
			return
		}
		RespondWithMappedError(c, err, resetErrorCases(), http.StatusInternalServerError, "reset request failed")
		return
	}

	expires := result.ExpiresAt
	c.JSON(http.StatusAccepted, ResetRequestResponse{
		Message:     resetAcceptedMessage,
		RequestID:   result.RequestID,
		Destination: result.MaskedDestination,
		ExpiresAt:   &expires,
	})
}

func (h *PasswordHandler) confirmReset(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	fp := h.fingerprints.Build(c.ClientIP(), c.GetHeader("User-Agent"))

	result, err := h.resets.Consume(c.Request.Context(), usecase.ResetConsumeInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		Fingerprint: fp,
	})
	if err != nil {
		RespondWithMappedError(c, err, resetErrorCases(), http.StatusInternalServerError, "reset failed")
		return
	}

	c.JSON(http.StatusOK, ResetConfirmResponse{
		Message:         "password updated",
		SessionsRevoked: result.SessionsRevoked,
	})
}

func resetErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		{Err: usecase.ErrResetContactMissing, Status: http.StatusUnprocessableEntity, Message: "no delivery channel available"},
		{Err: usecase.ErrResetTokenInvalid, Status: http.StatusUnauthorized, Message: "reset token invalid"},
		{Err: usecase.ErrResetTokenExpired, Status: http.StatusUnauthorized, Message: "reset token expired"},
	}
}
