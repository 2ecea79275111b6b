package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type fingerprintPayload struct {
	IP      string `json:"ip,omitempty"`
	Country string `json:"country,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Device  string `json:"device,omitempty"`
}

func fingerprintOf(fp domain.Fingerprint) fingerprintPayload {
	return fingerprintPayload{
		IP:      fp.IP,
		Country: fp.Country,
		OS:      fp.OS,
		Browser: fp.Browser,
		Device:  fp.Device,
	}
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes sso.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		Username     string         `json:"username"`
		Email        *string        `json:"email,omitempty"`
		Phone        *string        `json:"phone,omitempty"`
		RegisteredAt time.Time      `json:"registered_at"`
		Source       string         `json:"source"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Username:     event.Username,
		Email:        event.Email,
		Phone:        event.Phone,
		RegisteredAt: event.RegisteredAt.UTC(),
		Source:       event.Source,
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sso.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishLoginSucceeded publishes sso.auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		UserID      string             `json:"user_id"`
		APIKeyID    string             `json:"api_key_id,omitempty"`
		SessionID   string             `json:"session_id"`
		Fingerprint fingerprintPayload `json:"fingerprint"`
		Reused      bool               `json:"session_reused"`
		At          time.Time          `json:"occurred_at"`
	}{
		UserID:      event.UserID,
		APIKeyID:    event.APIKeyID,
		SessionID:   event.SessionID,
		Fingerprint: fingerprintOf(event.Fingerprint),
		Reused:      event.Reused,
		At:          event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "sso.auth.login.succeeded", event.UserID, event.At, payload)
}

// PublishLoginFailed publishes sso.auth.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		UserID      string             `json:"user_id"`
		Reason      string             `json:"reason"`
		Fingerprint fingerprintPayload `json:"fingerprint"`
		Attempts    int                `json:"failed_attempts"`
		At          time.Time          `json:"occurred_at"`
	}{
		UserID:      event.UserID,
		Reason:      event.Reason,
		Fingerprint: fingerprintOf(event.Fingerprint),
		Attempts:    event.Attempts,
		At:          event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "sso.auth.login.failed", event.UserID, event.At, payload)
}

// PublishLogout publishes sso.auth.logout events.
func (p *EventPublisher) PublishLogout(ctx context.Context, event domain.LogoutEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		SessionID string    `json:"session_id"`
		At        time.Time `json:"occurred_at"`
	}{
		UserID:    event.UserID,
		SessionID: event.SessionID,
		At:        event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "sso.auth.logout", event.UserID, event.At, payload)
}

// PublishAnomalyDetected publishes sso.auth.anomaly.detected events.
func (p *EventPublisher) PublishAnomalyDetected(ctx context.Context, event domain.AnomalyDetectedEvent) error {
	kinds := make([]string, 0, len(event.Kinds))
	for _, kind := range event.Kinds {
		kinds = append(kinds, string(kind))
	}

	payload := struct {
		UserID      string             `json:"user_id"`
		Kinds       []string           `json:"kinds"`
		Fingerprint fingerprintPayload `json:"fingerprint"`
		At          time.Time          `json:"occurred_at"`
	}{
		UserID:      event.UserID,
		Kinds:       kinds,
		Fingerprint: fingerprintOf(event.Fingerprint),
		At:          event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "sso.auth.anomaly.detected", event.UserID, event.At, payload)
}

// PublishPasswordResetRequested publishes sso.user.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		UserID            string    `json:"user_id"`
		RequestID         string    `json:"request_id"`
		RequestedAt       time.Time `json:"requested_at"`
		MaskedDestination string    `json:"masked_destination,omitempty"`
		ExpiresAt         time.Time `json:"expires_at"`
	}{
		UserID:            event.UserID,
		RequestID:         event.RequestID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		ExpiresAt:         event.ExpiresAt.UTC(),
	}

	timestamp := event.RequestedAt
	if timestamp.IsZero() {
		timestamp = event.ExpiresAt
	}

	return p.publish(ctx, event.EventID, "sso.user.password.reset_requested", event.UserID, timestamp, payload)
}

// PublishPasswordChanged publishes sso.user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		ChangedAt       time.Time      `json:"changed_at"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedAt:       event.ChangedAt.UTC(),
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sso.user.password.changed", event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
