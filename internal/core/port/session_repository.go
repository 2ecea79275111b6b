package port

import (
	"context"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetActive returns the LOGGED_IN session for the exact
	// (user, api key, fingerprint) tuple, if any.
	GetActive(ctx context.Context, userID, apiKeyID string, fp domain.Fingerprint) (*domain.Session, error)
	GetByAccessToken(ctx context.Context, token string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	// UpdateTokens replaces the stored pair, keeping the session id stable.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, at time.Time) error
	SetStatus(ctx context.Context, id string, status domain.SessionStatus) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}
