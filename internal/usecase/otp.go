package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const (
	otpDeliveryEmail = "email"
	otpDeliverySMS   = "sms"

	defaultOTPTTL    = time.Minute
	defaultOTPLength = 6
)

// ErrOTPContactMissing indicates the user has no reachable delivery channel.
var ErrOTPContactMissing = errors.New("no contact method available for otp delivery")

// OTPService issues and verifies one-time code challenges. Codes are stored
// encrypted with the field cipher; at most one VALID challenge exists per
// user at any moment.
type OTPService struct {
	challenges    port.ChallengeRepository
	cipher        port.FieldCipher
	notifier      port.Notifier
	throttle      *DeliveryThrottle
	sendMax       int
	ttl           time.Duration
	enterpriseTTL time.Duration
	codeLength    int
	logger        *zap.Logger
	now           func() time.Time
}

// OTPIssueResult describes an issued challenge. The plaintext code leaves the
// service only through the notifier.
type OTPIssueResult struct {
	ChallengeID  string
	Delivery     []string
	MaskedTarget string
	ExpiresAt    time.Time
}

// NewOTPService constructs an OTPService from the auth policy settings.
func NewOTPService(cfg config.AuthSettings, sendMax int, challenges port.ChallengeRepository, cipher port.FieldCipher, notifier port.Notifier, throttle *DeliveryThrottle, log *zap.Logger) *OTPService {
	if log == nil {
		log = zap.NewNop()
	}

	ttl := cfg.OTPTTL
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	enterpriseTTL := cfg.OTPEnterpriseTTL
	if enterpriseTTL <= 0 {
		enterpriseTTL = ttl
	}
	length := cfg.OTPLength
	if length <= 0 {
		length = defaultOTPLength
	}

	return &OTPService{
		challenges:    challenges,
		cipher:        cipher,
		notifier:      notifier,
		throttle:      throttle,
		sendMax:       sendMax,
		ttl:           ttl,
		enterpriseTTL: enterpriseTTL,
		codeLength:    length,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue mints a challenge for the user and fans the code out to every
// reachable channel. A still-live prior challenge is surfaced as
// OTPAlreadyActiveError with the remaining wait, so repeated login attempts
// inside the TTL cannot spam delivery. Enterprise flows get the long TTL.
func (s *OTPService) Issue(ctx context.Context, user *domain.User, apiKeyID *string, enterprise bool) (*OTPIssueResult, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := s.now().UTC()

	existing, err := s.challenges.GetActiveByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load active challenge: %w", err)
	}
	if existing != nil && existing.Live(now) {
		return nil, &OTPAlreadyActiveError{RetryAfter: existing.RemainingWait(now)}
	}

	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, otpSendRateLimitScope, user.ID, s.sendMax); err != nil {
			return nil, err
		}
	}

	code, err := security.GenerateNumericCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(code)
	if err != nil {
		return nil, fmt.Errorf("encrypt otp code: %w", err)
	}

	ttl := s.ttl
	if enterprise {
		ttl = s.enterpriseTTL
	}

	challenge := domain.MfaChallenge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		APIKeyID:  apiKeyID,
		Code:      encrypted,
		Status:    domain.CredentialValid,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := s.challenges.Supersede(ctx, challenge); err != nil {
		return nil, fmt.Errorf("persist challenge: %w", err)
	}

	result := &OTPIssueResult{
		ChallengeID: challenge.ID,
		ExpiresAt:   challenge.ExpiresAt,
	}
	s.deliver(ctx, user, code, result)
	if len(result.Delivery) == 0 {
		return nil, ErrOTPContactMissing
	}

	return result, nil
}

// deliver fans the code out to every channel the user can receive. Channel
// failures are logged and skipped; the challenge stays usable through any
// channel that succeeded.
func (s *OTPService) deliver(ctx context.Context, user *domain.User, code string, result *OTPIssueResult) {
	if user.Email != "" {
		if err := s.notifier.SendOTPByEmail(ctx, user.Email, code); err != nil {
			s.logger.Warn("otp email delivery failed",
				zap.String("user_id", user.ID),
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		} else {
			result.Delivery = append(result.Delivery, otpDeliveryEmail)
			result.MaskedTarget = logger.MaskEmail(user.Email)
		}
	}

	if user.Phone != nil && *user.Phone != "" {
		if err := s.notifier.SendOTPByMessage(ctx, *user.Phone, code); err != nil {
			s.logger.Warn("otp sms delivery failed",
				zap.String("user_id", user.ID),
				zap.String("phone", logger.MaskPhone(*user.Phone)),
				zap.Error(err),
			)
		} else {
			result.Delivery = append(result.Delivery, otpDeliverySMS)
			if result.MaskedTarget == "" {
				result.MaskedTarget = logger.MaskPhone(*user.Phone)
			}
		}
	}
}

// Verify checks the supplied code against the user's active challenge and
// consumes it on success. Expiry is detected lazily: the stale row is flipped
// INVALID before ErrOTPExpired is returned.
func (s *OTPService) Verify(ctx context.Context, userID, code string) error {
	challenge, err := s.challenges.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPInvalid
		}
		return fmt.Errorf("load active challenge: %w", err)
	}

	now := s.now().UTC()
	if !challenge.ExpiresAt.After(now) {
		if err := s.challenges.Invalidate(ctx, challenge.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("invalidate expired challenge failed", zap.String("challenge_id", challenge.ID), zap.Error(err))
		}
		return ErrOTPExpired
	}
	if challenge.Status != domain.CredentialValid {
		return ErrOTPInvalid
	}

	stored, err := s.cipher.Decrypt(challenge.Code)
	if err != nil {
		return fmt.Errorf("decrypt challenge code: %w", err)
	}

	if !security.ConstantTimeEquals(stored, code) {
		return ErrOTPInvalid
	}

	if err := s.challenges.Consume(ctx, challenge.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPInvalid
		}
		return fmt.Errorf("consume challenge: %w", err)
	}

	return nil
}
