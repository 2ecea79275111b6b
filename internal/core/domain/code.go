package domain

import "time"

// AuthCode is a short-lived authorization code scoped to a client, exchanged
// exactly once for a session token pair.
type AuthCode struct {
	ID          string
	UserID      string
	APIKeyID    string
	Code        string
	Status      CredentialStatus
	Fingerprint Fingerprint
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Live reports whether the code can still be exchanged at the supplied moment.
func (c AuthCode) Live(at time.Time) bool {
	return c.Status == CredentialValid && c.ExpiresAt.After(at)
}
