package domain

import "time"

// UserRegisteredEvent announces a newly provisioned account.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Username     string
	Email        *string
	Phone        *string
	RegisteredAt time.Time
	Source       string
	Metadata     map[string]any
}

// LoginSucceededEvent is published after a token pair is issued.
type LoginSucceededEvent struct {
	EventID     string
	UserID      string
	APIKeyID    string
	SessionID   string
	Fingerprint Fingerprint
	Reused      bool
	At          time.Time
}

// LoginFailedEvent is published for every failed authentication attempt.
type LoginFailedEvent struct {
	EventID     string
	UserID      string
	Reason      string
	Fingerprint Fingerprint
	Attempts    int
	At          time.Time
}

// LogoutEvent is published when a session is revoked by the user.
type LogoutEvent struct {
	EventID   string
	UserID    string
	SessionID string
	At        time.Time
}

// AnomalyDetectedEvent records a fingerprint mismatch against the last login.
type AnomalyDetectedEvent struct {
	EventID     string
	UserID      string
	Kinds       []AnomalyKind
	Fingerprint Fingerprint
	At          time.Time
}

// PasswordResetRequestedEvent carries reset delivery details downstream.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestID         string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
}

// PasswordChangedEvent is published after a reset or change completes.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
	Metadata        map[string]any
}
