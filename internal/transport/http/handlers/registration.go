package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Alfahan/sso-sub000/internal/usecase"
)

// RegistrationHandler exposes self-service account creation.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// RegisterRoutes binds registration endpoints.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.Register)
}

// Register creates a new account from the supplied credentials.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		input.Phone = &phone
	}

	user, err := h.registration.Register(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases(), http.StatusInternalServerError, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.Phone,
		Status:   string(user.Status),
	})
}

func registrationErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrIdentifierTaken, Status: http.StatusConflict, Message: "username or contact already registered"},
	}
}
