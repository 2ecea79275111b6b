package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBlocked  UserStatus = "blocked"
)

// IdentifierKind selects which blind-indexed contact column a lookup targets.
type IdentifierKind string

const (
	IdentifierEmail    IdentifierKind = "email"
	IdentifierPhone    IdentifierKind = "phone"
	IdentifierUsername IdentifierKind = "username"
	IdentifierNIK      IdentifierKind = "nik"
)

// User mirrors the persisted representation in the users table.
// Contact fields are stored encrypted with a deterministic blind index per
// column; repositories return them decrypted.
type User struct {
	ID                  string
	Username            string
	Email               string
	Phone               *string
	NIK                 *string
	PasswordHash        string
	Status              UserStatus
	FailedLoginAttempts int
	AttemptsUpdatedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLogin           *time.Time
}

// CanAuthenticate reports whether the account is eligible for login at all.
func (u User) CanAuthenticate() bool {
	return u.Status == UserStatusActive
}

// LockedOut reports whether the failed-attempt counter blocks admission at the
// supplied moment. The counter only locks while the cooldown window is open;
// once it elapses the caller is expected to reset the counter lazily.
func (u User) LockedOut(at time.Time, maxAttempts int, window time.Duration) bool {
	if maxAttempts <= 0 || u.FailedLoginAttempts < maxAttempts {
		return false
	}
	if u.AttemptsUpdatedAt == nil {
		return false
	}
	return at.Sub(*u.AttemptsUpdatedAt) < window
}
