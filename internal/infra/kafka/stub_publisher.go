package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs sso.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"username":      event.Username,
		"registered_at": event.RegisteredAt,
		"source":        event.Source,
		"metadata":      event.Metadata,
	}
	p.logEvent("sso.user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishLoginSucceeded logs sso.auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"api_key_id":     event.APIKeyID,
		"session_id":     event.SessionID,
		"session_reused": event.Reused,
	}
	p.logEvent("sso.auth.login.succeeded", event.UserID, event.At, payload)
	return nil
}

// PublishLoginFailed logs sso.auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	payload := map[string]any{
		"user_id":         event.UserID,
		"reason":          event.Reason,
		"failed_attempts": event.Attempts,
	}
	p.logEvent("sso.auth.login.failed", event.UserID, event.At, payload)
	return nil
}

// PublishLogout logs sso.auth.logout events.
func (p *StubPublisher) PublishLogout(_ context.Context, event domain.LogoutEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"session_id": event.SessionID,
	}
	p.logEvent("sso.auth.logout", event.UserID, event.At, payload)
	return nil
}

// PublishAnomalyDetected logs sso.auth.anomaly.detected events.
func (p *StubPublisher) PublishAnomalyDetected(_ context.Context, event domain.AnomalyDetectedEvent) error {
	payload := map[string]any{
		"user_id": event.UserID,
		"kinds":   event.Kinds,
	}
	p.logEvent("sso.auth.anomaly.detected", event.UserID, event.At, payload)
	return nil
}

// PublishPasswordResetRequested logs sso.user.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent("sso.user.password.reset_requested", event.UserID, event.RequestedAt, payload)
	return nil
}

// PublishPasswordChanged logs sso.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":          event.UserID,
		"changed_at":       event.ChangedAt,
		"sessions_revoked": event.SessionsRevoked,
		"metadata":         event.Metadata,
	}
	p.logEvent("sso.user.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
