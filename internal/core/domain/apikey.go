package domain

import "time"

// APIKey identifies the calling application. The row is owned by the api-key
// CRUD surface; the auth core only reads it to scope codes and sessions.
type APIKey struct {
	ID        string
	Name      string
	Key       string
	Status    string
	CreatedAt time.Time
}

// APIKeyStatusActive is the only status accepted for client scoping.
const APIKeyStatusActive = "active"
