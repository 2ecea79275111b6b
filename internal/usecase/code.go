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
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const (
	defaultCodeTTL    = time.Hour
	codeSecretByteLen = 32
)

// CodeService issues short-lived authorization codes and exchanges each of
// them exactly once.
type CodeService struct {
	codes  port.CodeRepository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewCodeService constructs a CodeService with the configured code TTL.
func NewCodeService(codes port.CodeRepository, ttl time.Duration, logger *zap.Logger) *CodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}

	return &CodeService{
		codes:  codes,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *CodeService) WithClock(now func() time.Time) *CodeService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue returns the still-live code for the exact (user, client, fingerprint)
// tuple when one exists, so a repeated login does not burn a fresh code.
// Otherwise any prior code is superseded and a new opaque one is minted.
func (s *CodeService) Issue(ctx context.Context, userID, apiKeyID string, fp domain.Fingerprint) (*domain.AuthCode, error) {
	now := s.now().UTC()

	existing, err := s.codes.GetActive(ctx, userID, apiKeyID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load active code: %w", err)
	}
	if existing != nil && existing.Live(now) && existing.Fingerprint.Matches(fp) {
		return existing, nil
	}

	secret, err := security.GenerateSecureToken(codeSecretByteLen)
	if err != nil {
		return nil, fmt.Errorf("generate authorization code: %w", err)
	}

	code := domain.AuthCode{
		ID:          uuid.NewString(),
		UserID:      userID,
		APIKeyID:    apiKeyID,
		Code:        secret,
		Status:      domain.CredentialValid,
		Fingerprint: fp,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	if err := s.codes.Supersede(ctx, code); err != nil {
		return nil, fmt.Errorf("persist authorization code: %w", err)
	}

	return &code, nil
}

// Exchange consumes the code atomically. The repository flips the row from
// VALID to INVALID in a single statement, so concurrent exchanges of the same
// code cannot both succeed. Expiry is detected on the returned row; the flip
// already happened, which doubles as the lazy invalidation.
func (s *CodeService) Exchange(ctx context.Context, code string) (*domain.AuthCode, error) {
	consumed, err := s.codes.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	if !consumed.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrCodeExpired
	}

	return consumed, nil
}
