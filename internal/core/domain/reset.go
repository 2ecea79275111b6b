package domain

import "time"

// PasswordResetToken is a single-use, time-boxed reset credential. The signed
// token string is returned verbatim while VALID so repeated requests inside
// the TTL stay idempotent.
type PasswordResetToken struct {
	ID          string
	UserID      string
	Token       string
	Status      CredentialStatus
	Fingerprint Fingerprint
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Live reports whether the token can still complete a reset.
func (t PasswordResetToken) Live(at time.Time) bool {
	return t.Status == CredentialValid && t.ExpiresAt.After(at)
}
