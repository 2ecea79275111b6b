package domain

import "time"

// CredentialStatus tracks the lifecycle of single-use artifacts (OTP
// challenges, authorization codes, reset tokens). A row leaves VALID exactly
// once, whether by consumption, expiry detection, or supersession.
type CredentialStatus string

const (
	CredentialValid   CredentialStatus = "VALID"
	CredentialInvalid CredentialStatus = "INVALID"
)

// MfaChallenge is a one-time code challenge issued during login.
// Code holds the plaintext in memory only; repositories persist the
// field-cipher output.
type MfaChallenge struct {
	ID        string
	UserID    string
	APIKeyID  *string
	Code      string
	Status    CredentialStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Live reports whether the challenge is still VALID and unexpired.
func (c MfaChallenge) Live(at time.Time) bool {
	return c.Status == CredentialValid && c.ExpiresAt.After(at)
}

// RemainingWait returns the duration until expiry rounded up to the minute,
// surfaced to callers that hit an already-active challenge.
func (c MfaChallenge) RemainingWait(at time.Time) time.Duration {
	remaining := c.ExpiresAt.Sub(at)
	if remaining <= 0 {
		return 0
	}
	rounded := remaining.Truncate(time.Minute)
	if rounded < remaining {
		rounded += time.Minute
	}
	return rounded
}
