package port

import (
	"context"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// APIKeyRepository reads client records owned by the api-key CRUD surface.
type APIKeyRepository interface {
	GetByKey(ctx context.Context, key string) (*domain.APIKey, error)
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
}
