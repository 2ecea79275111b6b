package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const registrationSourceSelf = "self"

// RegistrationService provisions new accounts. Contact identifiers are stored
// encrypted with their blind indexes by the repository; this layer owns
// uniqueness checks, password policy, and the registration event.
type RegistrationService struct {
	users  port.UserRepository
	policy port.PasswordPolicyValidator
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// RegisterInput carries a self-service registration request.
type RegisterInput struct {
	Username string
	Email    string
	Phone    *string
	Password string
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(users port.UserRepository, policy port.PasswordPolicyValidator, events port.EventPublisher, log *zap.Logger) *RegistrationService {
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RegistrationService{
		users:  users,
		policy: policy,
		events: events,
		logger: log,
		now:    time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates the input, hashes the credential, and creates the user.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}

	if err := s.ensureAvailable(ctx, domain.IdentifierUsername, username); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, domain.IdentifierEmail, email); err != nil {
		return nil, err
	}
	if input.Phone != nil && *input.Phone != "" {
		if err := s.ensureAvailable(ctx, domain.IdentifierPhone, *input.Phone); err != nil {
			return nil, err
		}
	}

	if err := s.policy.Validate(input.Password, domain.PasswordContext{
		Username: username,
		Email:    email,
		Phone:    input.Phone,
	}); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Phone:        input.Phone,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publishRegistered(ctx, &user)
	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &user, nil
}

func (s *RegistrationService) ensureAvailable(ctx context.Context, kind domain.IdentifierKind, value string) error {
	_, err := s.users.GetByIdentifier(ctx, kind, value)
	if err == nil {
		return ErrIdentifierTaken
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("check %s availability: %w", kind, err)
}

func (s *RegistrationService) publishRegistered(ctx context.Context, user *domain.User) {
	if s.events == nil {
		return
	}

	email := user.Email
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        &email,
		Phone:        user.Phone,
		RegisteredAt: user.CreatedAt,
		Source:       registrationSourceSelf,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
