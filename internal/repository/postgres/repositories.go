package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alfahan/sso-sub000/internal/core/port"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users       *UserRepository
	AuthHistory *AuthHistoryRepository
	Challenges  *ChallengeRepository
	Codes       *CodeRepository
	Sessions    *SessionRepository
	ResetTokens *ResetTokenRepository
	APIKeys     *APIKeyRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, cipher port.FieldCipher) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(pool, cipher),
		AuthHistory: NewAuthHistoryRepository(pool),
		Challenges:  NewChallengeRepository(pool),
		Codes:       NewCodeRepository(pool),
		Sessions:    NewSessionRepository(pool),
		ResetTokens: NewResetTokenRepository(pool),
		APIKeys:     NewAPIKeyRepository(pool),
	}
}
