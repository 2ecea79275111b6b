package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/infra/fingerprint"
	"github.com/Alfahan/sso-sub000/internal/transport/http/middleware"
	"github.com/Alfahan/sso-sub000/internal/usecase"
)

// AuthHandler exposes the login state machine over HTTP. All login-family
// routes sit behind the API key middleware; the resolved client id scopes
// codes and sessions.
type AuthHandler struct {
	login        *usecase.LoginService
	fingerprints *fingerprint.Builder
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(login *usecase.LoginService, fingerprints *fingerprint.Builder) *AuthHandler {
	return &AuthHandler{login: login, fingerprints: fingerprints}
}

// RegisterRoutes binds the authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.loginWithPassword)
	r.POST("/login/phone", h.loginWithPhone)
	r.POST("/login/nik", h.loginWithNIK)
	r.POST("/otp/verify", h.verifyOTP)
	r.POST("/token", h.exchangeCode)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
	r.GET("/introspect", h.introspect)
}

func (h *AuthHandler) requestFingerprint(c *gin.Context) domain.Fingerprint {
	return h.fingerprints.Build(c.ClientIP(), c.GetHeader("User-Agent"))
}

func (h *AuthHandler) loginWithPassword(c *gin.Context) {
	var req PasswordLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.login.LoginWithPassword(c.Request.Context(), req.Identifier, req.Password, middleware.APIKeyID(c), h.requestFingerprint(c))
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, newLoginStepResponse(result))
}

func (h *AuthHandler) loginWithPhone(c *gin.Context) {
	var req PhoneLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.login.LoginWithPhone(c.Request.Context(), strings.TrimSpace(req.Phone), middleware.APIKeyID(c), h.requestFingerprint(c))
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, newLoginStepResponse(result))
}

func (h *AuthHandler) loginWithNIK(c *gin.Context) {
	var req NIKLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.login.LoginWithNIK(c.Request.Context(), strings.TrimSpace(req.NIK), req.Password, middleware.APIKeyID(c), h.requestFingerprint(c))
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, newLoginStepResponse(result))
}

func (h *AuthHandler) verifyOTP(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	result, err := h.login.VerifyOTP(c.Request.Context(), req.Identifier, req.Code, middleware.APIKeyID(c), h.requestFingerprint(c))
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, newLoginStepResponse(result))
}

func (h *AuthHandler) exchangeCode(c *gin.Context) {
	var req CodeExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid exchange payload"))
		return
	}

	result, err := h.login.ExchangeCode(c.Request.Context(), req.Code)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "exchange failed")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result))
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	result, err := h.login.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "refresh failed")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result))
}

func (h *AuthHandler) logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.login.Logout(c.Request.Context(), token, h.requestFingerprint(c)); err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "logout failed")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) introspect(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	session, err := h.login.Introspect(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases(), http.StatusInternalServerError, "introspection failed")
		return
	}

	c.JSON(http.StatusOK, SessionIntrospection{
		SessionID: session.ID,
		UserID:    session.UserID,
		APIKeyID:  session.APIKeyID,
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt,
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
