package domain

import "time"

// AuthAction labels the terminal transition recorded by an auth history row.
type AuthAction string

const (
	ActionLogin         AuthAction = "LOGIN"
	ActionLoginFailed   AuthAction = "LOGIN_FAILED"
	ActionLogout        AuthAction = "LOGOUT"
	ActionResetPassword AuthAction = "RESET_PASSWORD"
)

// AuthHistory is an append-only log entry per authentication attempt.
// The most recent row per user feeds anomaly comparison.
type AuthHistory struct {
	ID          string
	UserID      string
	Fingerprint Fingerprint
	Action      AuthAction
	CreatedAt   time.Time
}
