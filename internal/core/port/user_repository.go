package port

import (
	"context"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// UserRepository exposes persistence behavior for users. Lookups by contact
// identifier resolve through the deterministic blind-index columns, never by
// decrypting ciphertext.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, kind domain.IdentifierKind, value string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// IncrementFailedAttempts bumps the counter atomically (single UPDATE ...
	// RETURNING) so concurrent failures never lose increments.
	IncrementFailedAttempts(ctx context.Context, id string, at time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, id string, at time.Time) error
}
