package port

import (
	"context"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// CodeRepository persists authorization codes.
type CodeRepository interface {
	// Supersede invalidates any VALID code for the (user, api key) pair and
	// inserts the new one transactionally.
	Supersede(ctx context.Context, code domain.AuthCode) error
	GetActive(ctx context.Context, userID, apiKeyID string) (*domain.AuthCode, error)
	// Consume atomically flips the row matching the opaque code from VALID to
	// INVALID and returns it. repository.ErrNotFound means no VALID row
	// matched, which covers both unknown and already-consumed codes.
	Consume(ctx context.Context, code string) (*domain.AuthCode, error)
	Invalidate(ctx context.Context, id string) error
}
