package port

import (
	"context"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// ResetTokenRepository persists password reset tokens.
type ResetTokenRepository interface {
	// Supersede invalidates any VALID token for the user and inserts the new
	// one transactionally.
	Supersede(ctx context.Context, token domain.PasswordResetToken) error
	GetActiveByUser(ctx context.Context, userID string) (*domain.PasswordResetToken, error)
	GetByToken(ctx context.Context, token string) (*domain.PasswordResetToken, error)
	// Consume flips status to INVALID only while it is still VALID.
	Consume(ctx context.Context, id string) error
	Invalidate(ctx context.Context, id string) error
}
