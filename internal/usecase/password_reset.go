package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const defaultResetTokenTTL = 2 * time.Minute

// ErrResetContactMissing indicates the user has no email to receive the link.
var ErrResetContactMissing = errors.New("no contact method available for password reset")

// PasswordResetService issues and consumes single-use password reset tokens.
// Tokens are signed JWTs whose subject is the encrypted user id; the stored
// row is the authority on whether a token can still be consumed.
type PasswordResetService struct {
	users      port.UserRepository
	resets     port.ResetTokenRepository
	sessions   *SessionService
	history    port.AuthHistoryRepository
	throttle   *DeliveryThrottle
	requestMax int
	tokens     *security.JWTManager
	signingKid string
	issuer     string
	cipher     port.FieldCipher
	policy     port.PasswordPolicyValidator
	notifier   port.Notifier
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	ttl        time.Duration
}

// ResetRequestResult describes the issued (or reused) reset artifact.
type ResetRequestResult struct {
	RequestID         string
	Token             string
	MaskedDestination string
	ExpiresAt         time.Time
	Reused            bool
}

// ResetConsumeInput carries the payload to finalize a password reset.
type ResetConsumeInput struct {
	Token       string
	NewPassword string
	Fingerprint domain.Fingerprint
}

// ResetConsumeResult describes the outcome of a completed reset.
type ResetConsumeResult struct {
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(users port.UserRepository, resets port.ResetTokenRepository, sessions *SessionService, history port.AuthHistoryRepository, throttle *DeliveryThrottle, requestMax int, tokens *security.JWTManager, signingKid, issuer string, cipher port.FieldCipher, policy port.PasswordPolicyValidator, notifier port.Notifier, events port.EventPublisher, ttl time.Duration, log *zap.Logger) *PasswordResetService {
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultResetTokenTTL
	}

	return &PasswordResetService{
		users:      users,
		resets:     resets,
		sessions:   sessions,
		history:    history,
		throttle:   throttle,
		requestMax: requestMax,
		tokens:     tokens,
		signingKid: signingKid,
		issuer:     issuer,
		cipher:     cipher,
		policy:     policy,
		notifier:   notifier,
		events:     events,
		logger:     log,
		now:        time.Now,
		ttl:        ttl,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// Request mints a reset token for the user behind the identifier and mails
// the link. A still-live prior token is returned verbatim, so retries inside
// the TTL are idempotent; the link is re-sent in case the first one was lost.
func (s *PasswordResetService) Request(ctx context.Context, identifier string, fp domain.Fingerprint) (*ResetRequestResult, error) {
	kind, value := classifyIdentifier(identifier)

	user, err := s.users.GetByIdentifier(ctx, kind, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, passwordResetRateLimitScope, value, s.requestMax); err != nil {
			return nil, err
		}
	}
	if user.Email == "" {
		return nil, ErrResetContactMissing
	}

	now := s.now().UTC()

	existing, err := s.resets.GetActiveByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load active reset token: %w", err)
	}
	if existing != nil && existing.Live(now) {
		s.sendLink(ctx, user, existing.Token)
		return &ResetRequestResult{
			RequestID:         existing.ID,
			Token:             existing.Token,
			MaskedDestination: logger.MaskEmail(user.Email),
			ExpiresAt:         existing.ExpiresAt,
			Reused:            true,
		}, nil
	}

	signed, err := s.mintToken(user.ID, now)
	if err != nil {
		return nil, err
	}

	row := domain.PasswordResetToken{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Token:       signed,
		Status:      domain.CredentialValid,
		Fingerprint: fp,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	if err := s.resets.Supersede(ctx, row); err != nil {
		return nil, fmt.Errorf("persist reset token: %w", err)
	}

	s.sendLink(ctx, user, signed)
	s.publishRequested(ctx, user, row)

	return &ResetRequestResult{
		RequestID:         row.ID,
		Token:             signed,
		MaskedDestination: logger.MaskEmail(user.Email),
		ExpiresAt:         row.ExpiresAt,
	}, nil
}

// Consume finalizes a reset: the token row is claimed exactly once, the new
// password is validated and re-hashed, and every live session of the user is
// revoked so stolen tokens die with the old credential.
func (s *PasswordResetService) Consume(ctx context.Context, input ResetConsumeInput) (*ResetConsumeResult, error) {
	row, err := s.resets.GetByToken(ctx, input.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("load reset token: %w", err)
	}

	now := s.now().UTC()
	if !row.ExpiresAt.After(now) {
		s.invalidateRow(ctx, row.ID)
		return nil, ErrResetTokenExpired
	}
	if row.Status != domain.CredentialValid {
		return nil, ErrResetTokenInvalid
	}

	userID, err := s.verifyToken(ctx, input.Token, row, now)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.policy.Validate(input.NewPassword, domain.PasswordContext{
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.Phone,
	}); err != nil {
		return nil, err
	}

	if err := s.resets.Consume(ctx, row.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := security.HashPassword(input.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	revoked := 0
	if s.sessions != nil {
		revoked, err = s.sessions.RevokeAllForUser(ctx, user.ID)
		if err != nil {
			s.logger.Warn("revoke sessions after reset failed", zap.String("user_id", user.ID), zap.Error(err))
			revoked = 0
		}
	}

	s.appendHistory(ctx, user.ID, input.Fingerprint, now)
	s.publishChanged(ctx, user.ID, now, revoked)

	return &ResetConsumeResult{
		UserID:          user.ID,
		ChangedAt:       now,
		SessionsRevoked: revoked,
	}, nil
}

// verifyToken checks signature, purpose, and subject binding. The encrypted
// subject must decrypt to the row's owner; anything else is treated as
// invalid without detail.
func (s *PasswordResetService) verifyToken(ctx context.Context, token string, row *domain.PasswordResetToken, now time.Time) (string, error) {
	claims := &security.ResetTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.tokens.Keyfunc, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.invalidateRow(ctx, row.ID)
			return "", ErrResetTokenExpired
		}
		return "", ErrResetTokenInvalid
	}
	if claims.Purpose != security.ResetTokenPurpose {
		return "", ErrResetTokenInvalid
	}

	userID, err := s.cipher.Decrypt(claims.Subject)
	if err != nil || userID != row.UserID {
		return "", ErrResetTokenInvalid
	}

	return userID, nil
}

func (s *PasswordResetService) mintToken(userID string, now time.Time) (string, error) {
	subject, err := s.cipher.Encrypt(userID)
	if err != nil {
		return "", fmt.Errorf("seal token subject: %w", err)
	}

	claims, err := security.NewResetTokenClaims(security.TokenOptions{
		Subject:  subject,
		Issuer:   s.issuer,
		TTL:      s.ttl,
		IssuedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("build reset token claims: %w", err)
	}

	signed, err := s.tokens.Sign(s.signingKid, claims)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}

	return signed, nil
}

func (s *PasswordResetService) sendLink(ctx context.Context, user *domain.User, token string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendResetLink(ctx, user.Email, token); err != nil {
		s.logger.Warn("reset link delivery failed",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}
}

func (s *PasswordResetService) invalidateRow(ctx context.Context, id string) {
	if err := s.resets.Invalidate(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("invalidate expired reset token failed", zap.String("token_id", id), zap.Error(err))
	}
}

func (s *PasswordResetService) appendHistory(ctx context.Context, userID string, fp domain.Fingerprint, at time.Time) {
	if s.history == nil {
		return
	}
	entry := domain.AuthHistory{
		ID:          uuid.NewString(),
		UserID:      userID,
		Fingerprint: fp,
		Action:      domain.ActionResetPassword,
		CreatedAt:   at,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("append reset history failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishRequested(ctx context.Context, user *domain.User, row domain.PasswordResetToken) {
	if s.events == nil {
		return
	}
	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		UserID:            user.ID,
		RequestID:         row.ID,
		RequestedAt:       row.CreatedAt,
		MaskedDestination: logger.MaskEmail(user.Email),
		ExpiresAt:         row.ExpiresAt,
	}
	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish reset requested event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishChanged(ctx context.Context, userID string, at time.Time, revoked int) {
	if s.events == nil {
		return
	}
	event := domain.PasswordChangedEvent{
		EventID:         uuid.NewString(),
		UserID:          userID,
		ChangedAt:       at,
		SessionsRevoked: revoked,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed event failed", zap.String("user_id", userID), zap.Error(err))
	}
}
