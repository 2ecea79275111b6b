package domain

import "time"

// SessionStatus enumerates the lifecycle of a persisted session row.
type SessionStatus string

const (
	SessionLoggedIn  SessionStatus = "LOGGED_IN"
	SessionLoggedOut SessionStatus = "LOGGED_OUT"
	SessionBlocked   SessionStatus = "BLOCKED"
)

// Session binds a user, a client, and a device fingerprint to a live
// access/refresh token pair. One row represents one authenticated session;
// the row's status is authoritative over cryptographic expiry.
type Session struct {
	ID           string
	UserID       string
	APIKeyID     string
	AccessToken  string
	RefreshToken string
	Status       SessionStatus
	Fingerprint  Fingerprint
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLive reports whether the session row still authorizes requests.
func (s Session) IsLive() bool {
	return s.Status == SessionLoggedIn
}

// TokenPair is what a completed login hands back to the HTTP layer.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
