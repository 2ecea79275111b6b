package port

import (
	"context"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// AuthHistoryRepository stores the append-only authentication audit trail.
type AuthHistoryRepository interface {
	Append(ctx context.Context, entry domain.AuthHistory) error
	Latest(ctx context.Context, userID string) (*domain.AuthHistory, error)
}
