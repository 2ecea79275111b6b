package port

import (
	"context"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// ChallengeRepository persists OTP challenges. Code values arrive already
// encrypted by the field cipher.
type ChallengeRepository interface {
	// Supersede invalidates any VALID challenge for the user and inserts the
	// new one in a single transaction, so two live challenges never coexist.
	Supersede(ctx context.Context, challenge domain.MfaChallenge) error
	GetActiveByUser(ctx context.Context, userID string) (*domain.MfaChallenge, error)
	// Consume flips status to INVALID only when it is still VALID.
	Consume(ctx context.Context, id string) error
	Invalidate(ctx context.Context, id string) error
}
